// Package audit checks, once per job, that every mandatory catalog concept
// was reported for each company and period present in the accepted rows.
package audit

import (
	"fmt"
	"sort"

	"github.com/sells-group/fin-import/internal/catalog"
	"github.com/sells-group/fin-import/internal/model"
)

type group struct {
	scope  string
	period string
}

// Audit returns one job-level error (row 0) per mandatory concept missing
// from a scope+period group of records. Records that carry no concept are
// ignored. Errors are ordered by scope, period, then concept code.
func Audit(records []model.Record, cat *catalog.Catalog) []model.RowError {
	mandatory := cat.Mandatory()
	if len(mandatory) == 0 {
		return nil
	}

	seen := make(map[group]map[string]bool)
	for _, r := range records {
		fact, ok := r.(model.ConceptFact)
		if !ok {
			continue
		}
		g := group{scope: fact.Scope(), period: fact.PeriodKey()}
		if seen[g] == nil {
			seen[g] = make(map[string]bool)
		}
		seen[g][catalog.NormalizeCode(fact.Concept())] = true
	}

	groups := make([]group, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].scope != groups[j].scope {
			return groups[i].scope < groups[j].scope
		}
		return groups[i].period < groups[j].period
	})

	var errs []model.RowError
	for _, g := range groups {
		codes := seen[g]
		for _, m := range mandatory {
			if codes[m.Code] {
				continue
			}
			errs = append(errs, model.RowError{
				Row: 0,
				Messages: []string{fmt.Sprintf(
					"missing mandatory concept %s (%s) for company %s, period %s",
					m.Code, m.Name, g.scope, g.period,
				)},
			})
		}
	}
	return errs
}
