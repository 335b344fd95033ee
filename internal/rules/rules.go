package rules

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/playmatatu/duels/internal/models"
)

// GameID identifies a registered game. The set is closed; ids arriving from
// HTTP or the database are checked with Lookup.
type GameID string

const (
	Trivia     GameID = "trivia"
	Reaction   GameID = "reaction"
	Memory     GameID = "memory"
	MathSprint GameID = "math_sprint"
	Typing     GameID = "typing"
)

// Games lists every registered game in display order.
var Games = []GameID{Trivia, Reaction, Memory, MathSprint, Typing}

// Direction says which way a metric wins.
type Direction string

const (
	HigherWins Direction = "desc"
	LowerWins  Direction = "asc"
)

// Criterion is one (metric, direction) step of a rule's priority list.
type Criterion struct {
	Metric    string    `json:"metric"`
	Direction Direction `json:"direction"`
}

// Verdict is the result of comparing two bags, from the first bag's side.
type Verdict int

const (
	Tie Verdict = iota
	FirstWins
	SecondWins
)

// Variant selects the notification text.
type Variant string

const (
	VariantNew  Variant = "new"
	VariantWon  Variant = "won"
	VariantLost Variant = "lost"
	VariantTied Variant = "tied"
)

// Rule is the immutable scoring and wording for one game.
type Rule struct {
	Game          GameID      `json:"game_id"`
	DisplayName   string      `json:"display_name"`
	Priority      []Criterion `json:"priority"`
	WinRewardHint int         `json:"win_reward_hint"`

	summary func(models.MetricBag) string
}

// ConfigError is returned for a game id with no registered rule.
type ConfigError struct {
	GameID string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("no rule registered for game %q", e.GameID)
}

// Lookup returns the rule for gameID.
func Lookup(gameID string) (Rule, error) {
	r, ok := ruleFor(GameID(gameID))
	if !ok {
		return Rule{}, &ConfigError{GameID: gameID}
	}
	return r, nil
}

// All returns every registered rule in display order.
func All() []Rule {
	out := make([]Rule, 0, len(Games))
	for _, g := range Games {
		r, _ := ruleFor(g)
		out = append(out, r)
	}
	return out
}

func ruleFor(id GameID) (Rule, bool) {
	switch id {
	case Trivia:
		return Rule{
			Game:          Trivia,
			DisplayName:   "Trivia",
			Priority:      []Criterion{{"crowns", HigherWins}, {"score", HigherWins}},
			WinRewardHint: 50,
			summary: func(b models.MetricBag) string {
				return fmt.Sprintf("%s crowns, %s pts", num(b, "crowns"), num(b, "score"))
			},
		}, true
	case Reaction:
		return Rule{
			Game:          Reaction,
			DisplayName:   "Reaction Time",
			Priority:      []Criterion{{"best_ms", LowerWins}, {"avg_ms", LowerWins}},
			WinRewardHint: 30,
			summary: func(b models.MetricBag) string {
				return fmt.Sprintf("best %sms, avg %sms", num(b, "best_ms"), num(b, "avg_ms"))
			},
		}, true
	case Memory:
		return Rule{
			Game:          Memory,
			DisplayName:   "Memory Match",
			Priority:      []Criterion{{"pairs", HigherWins}, {"moves", LowerWins}, {"seconds", LowerWins}},
			WinRewardHint: 40,
			summary: func(b models.MetricBag) string {
				return fmt.Sprintf("%s pairs in %s moves (%ss)", num(b, "pairs"), num(b, "moves"), num(b, "seconds"))
			},
		}, true
	case MathSprint:
		return Rule{
			Game:          MathSprint,
			DisplayName:   "Math Sprint",
			Priority:      []Criterion{{"correct", HigherWins}, {"mistakes", LowerWins}, {"seconds", LowerWins}},
			WinRewardHint: 40,
			summary: func(b models.MetricBag) string {
				return fmt.Sprintf("%s correct, %s mistakes (%ss)", num(b, "correct"), num(b, "mistakes"), num(b, "seconds"))
			},
		}, true
	case Typing:
		return Rule{
			Game:          Typing,
			DisplayName:   "Typing Race",
			Priority:      []Criterion{{"wpm", HigherWins}, {"accuracy", HigherWins}},
			WinRewardHint: 30,
			summary: func(b models.MetricBag) string {
				return fmt.Sprintf("%s wpm at %s%% accuracy", num(b, "wpm"), num(b, "accuracy"))
			},
		}, true
	}
	return Rule{}, false
}

// Compare reduces the priority list left to right. The first metric on
// which the bags differ decides. A metric present on only one side wins
// for that side regardless of direction.
func (r Rule) Compare(a, b models.MetricBag) Verdict {
	for _, c := range r.Priority {
		av, aok := lookup(a, c.Metric)
		bv, bok := lookup(b, c.Metric)
		switch {
		case !aok && !bok:
			continue
		case !aok:
			return SecondWins
		case !bok:
			return FirstWins
		}
		cmp := compareValues(av, bv)
		if cmp == 0 {
			continue
		}
		if c.Direction == LowerWins {
			cmp = -cmp
		}
		if cmp > 0 {
			return FirstWins
		}
		return SecondWins
	}
	return Tie
}

// Format renders a result bag for humans.
func (r Rule) Format(b models.MetricBag) string {
	if b == nil {
		return "no result"
	}
	if r.summary == nil {
		return fallbackSummary(b)
	}
	return r.summary(b)
}

// NotificationText builds the subject and body of an inbox message for the
// recipient. mine and theirs are the recipient's and the other party's bags.
func (r Rule) NotificationText(v Variant, otherName string, mine, theirs models.MetricBag) (subject, body string) {
	if otherName == "" {
		otherName = "Your opponent"
	}
	switch v {
	case VariantNew:
		return fmt.Sprintf("New %s challenge", r.DisplayName),
			fmt.Sprintf("%s challenged you to %s. Play your round to settle it.", otherName, r.DisplayName)
	case VariantWon:
		return fmt.Sprintf("You won at %s!", r.DisplayName),
			fmt.Sprintf("You beat %s: %s vs %s. Reward: %d coins.", otherName, r.Format(mine), r.Format(theirs), r.WinRewardHint)
	case VariantLost:
		return fmt.Sprintf("You lost at %s", r.DisplayName),
			fmt.Sprintf("%s won: %s vs your %s.", otherName, r.Format(theirs), r.Format(mine))
	default:
		return fmt.Sprintf("%s ended in a tie", r.DisplayName),
			fmt.Sprintf("You and %s tied: %s each.", otherName, r.Format(mine))
	}
}

func lookup(b models.MetricBag, metric string) (any, bool) {
	if b == nil {
		return nil, false
	}
	v, ok := b[metric]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

const (
	rankBool = iota + 1
	rankNumber
	rankString
	rankOther
)

func kindOf(v any) (rank int, f float64, s string, b bool) {
	switch x := v.(type) {
	case bool:
		return rankBool, 0, "", x
	case string:
		return rankString, 0, x, false
	case json.Number:
		if n, err := x.Float64(); err == nil {
			return rankNumber, n, "", false
		}
		return rankString, 0, x.String(), false
	case float64:
		return rankNumber, x, "", false
	case float32:
		return rankNumber, float64(x), "", false
	case int:
		return rankNumber, float64(x), "", false
	case int32:
		return rankNumber, float64(x), "", false
	case int64:
		return rankNumber, float64(x), "", false
	case uint:
		return rankNumber, float64(x), "", false
	case uint32:
		return rankNumber, float64(x), "", false
	case uint64:
		return rankNumber, float64(x), "", false
	}
	return rankOther, 0, fmt.Sprint(v), false
}

// compareValues returns -1, 0 or 1. Values of different kinds order by kind.
func compareValues(a, b any) int {
	ra, fa, sa, ba := kindOf(a)
	rb, fb, sb, bb := kindOf(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case rankBool:
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		default:
			return 1
		}
	case rankNumber:
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	default:
		return strings.Compare(sa, sb)
	}
}

func num(b models.MetricBag, metric string) string {
	v, ok := lookup(b, metric)
	if !ok {
		return "-"
	}
	if rank, f, s, _ := kindOf(v); rank == rankNumber {
		return strconv.FormatFloat(f, 'f', -1, 64)
	} else if rank == rankString {
		return s
	}
	return fmt.Sprint(v)
}

func fallbackSummary(b models.MetricBag) string {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Sprint(map[string]any(b))
	}
	return string(raw)
}
