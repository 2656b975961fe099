package cron

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Hash seeds the resolution of "H" tokens so that many jobs sharing the same
// expression are spread over the field range instead of firing together.
// The zero Hash resolves every token to the lowest permitted value.
type Hash struct {
	seed   int64
	seeded bool
}

// HashFrom derives a Hash from a stable name such as a job's full name.
func HashFrom(name string) Hash {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return Hash{seed: int64(h.Sum64()), seeded: true}
}

// rand returns a fresh generator so that each line resolves independently
// of the lines parsed before it.
func (h Hash) rand() *rand.Rand {
	if !h.seeded {
		return nil
	}
	return rand.New(rand.NewSource(h.seed))
}

type fieldBounds struct {
	name   string
	min    int
	max    int
	hashed int // upper bound for a bare H
}

var fields = [5]fieldBounds{
	{"minute", 0, 59, 59},
	{"hour", 0, 23, 23},
	{"day of month", 1, 31, 28},
	{"month", 1, 12, 12},
	{"day of week", 0, 6, 6},
}

var descriptors = map[string]string{
	"@yearly":   "H H H H *",
	"@annually": "H H H H *",
	"@monthly":  "H H H * *",
	"@weekly":   "H H * * H",
	"@daily":    "H H * * *",
	"@midnight": "H H(0-2) * * *",
	"@hourly":   "H * * * *",
}

var reHashToken = regexp.MustCompile(`^H(?:\((\d+)-(\d+)\))?(?:/(\d+))?$`)

// expandHash rewrites descriptors and H tokens into plain cron syntax.
// Expressions that do not have five fields are returned unchanged so the
// cron parser reports the problem.
func expandHash(expr string, rnd *rand.Rand) (string, error) {
	if d, ok := descriptors[strings.ToLower(expr)]; ok {
		expr = d
	}
	parts := strings.Fields(expr)
	if len(parts) != len(fields) {
		return expr, nil
	}

	for i, part := range parts {
		if !strings.Contains(part, "H") {
			continue
		}
		items := strings.Split(part, ",")
		for j, item := range items {
			if !strings.HasPrefix(item, "H") {
				continue
			}
			resolved, err := resolveHashToken(item, fields[i], rnd)
			if err != nil {
				return "", err
			}
			items[j] = resolved
		}
		parts[i] = strings.Join(items, ",")
	}
	return strings.Join(parts, " "), nil
}

func resolveHashToken(token string, f fieldBounds, rnd *rand.Rand) (string, error) {
	m := reHashToken.FindStringSubmatch(token)
	if m == nil {
		return "", errors.Newf("invalid hash token %q in %s field", token, f.name)
	}

	lo, hi := f.min, f.hashed
	if m[1] != "" {
		lo, _ = strconv.Atoi(m[1])
		hi, _ = strconv.Atoi(m[2])
		if lo < f.min || hi > f.max || lo > hi {
			return "", errors.Newf("hash range %d-%d out of bounds for %s field (%d-%d)", lo, hi, f.name, f.min, f.max)
		}
	}

	if m[3] == "" {
		return strconv.Itoa(lo + next(rnd, hi-lo+1)), nil
	}

	step, _ := strconv.Atoi(m[3])
	if step < 1 {
		return "", errors.Newf("step must be positive in %q", token)
	}
	if m[1] == "" {
		hi = f.max
		if f.name == "day of month" {
			hi = f.hashed
		}
	}
	span := hi - lo + 1
	if step < span {
		span = step
	}
	start := lo + next(rnd, span)
	return fmt.Sprintf("%d-%d/%d", start, hi, step), nil
}

func next(rnd *rand.Rand, n int) int {
	if rnd == nil || n <= 1 {
		return 0
	}
	return rnd.Intn(n)
}
