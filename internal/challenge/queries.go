package challenge

import "github.com/playmatatu/duels/internal/models"

// PendingReceived: challenges waiting on userID as opponent.
func PendingReceived(rows []models.Challenge, userID string) []models.Challenge {
	return filter(rows, func(c *models.Challenge) bool {
		return c.OpponentID == userID && c.Status == models.StatusPending && c.OpponentCompletedAt == nil
	})
}

// PendingSent: challenges userID started that are not resolved yet.
func PendingSent(rows []models.Challenge, userID string) []models.Challenge {
	return filter(rows, func(c *models.Challenge) bool {
		return c.InitiatorID == userID && c.Status == models.StatusPending && c.Phase() != models.PhaseResolved
	})
}

// History: resolved or expired challenges involving userID.
func History(rows []models.Challenge, userID string) []models.Challenge {
	return filter(rows, func(c *models.Challenge) bool {
		if c.InitiatorID != userID && c.OpponentID != userID {
			return false
		}
		return c.Phase() == models.PhaseResolved || c.Status == models.StatusExpired
	})
}

// View is a user's challenges split the way the lobby shows them.
type View struct {
	PendingReceived []models.Challenge `json:"pending_received"`
	PendingSent     []models.Challenge `json:"pending_sent"`
	History         []models.Challenge `json:"history"`
}

func Split(rows []models.Challenge, userID string) View {
	return View{
		PendingReceived: PendingReceived(rows, userID),
		PendingSent:     PendingSent(rows, userID),
		History:         History(rows, userID),
	}
}

func (m *Manager) PendingReceived(userID, gameID string) []models.Challenge {
	return PendingReceived(m.cache.Snapshot(userID, gameID), userID)
}

func (m *Manager) PendingSent(userID, gameID string) []models.Challenge {
	return PendingSent(m.cache.Snapshot(userID, gameID), userID)
}

func (m *Manager) History(userID, gameID string) []models.Challenge {
	return History(m.cache.Snapshot(userID, gameID), userID)
}

func filter(rows []models.Challenge, keep func(*models.Challenge) bool) []models.Challenge {
	out := make([]models.Challenge, 0)
	for i := range rows {
		if keep(&rows[i]) {
			out = append(out, rows[i])
		}
	}
	return out
}
