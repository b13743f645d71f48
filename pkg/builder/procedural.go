package builder

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harun/twinself/pkg/changetracker"
	"github.com/harun/twinself/pkg/memerrors"
	"github.com/rs/zerolog"
)

// Rule is a named behavioural instruction.
type Rule struct {
	RuleName    string `json:"rule_name"`
	RuleContent string `json:"rule_content"`
}

// ProceduralRoutine stores one point per rule, embedding the rule content.
type ProceduralRoutine struct {
	Deps
}

func (r *ProceduralRoutine) Build(ctx context.Context, sourceDir, collection string) error {
	var docs []document
	err := loadJSONArrays(sourceDir, func(rel string, raw []json.RawMessage) {
		for i, item := range raw {
			var rule Rule
			if err := json.Unmarshal(item, &rule); err != nil || rule.RuleName == "" || rule.RuleContent == "" {
				warnf(r.Logger.Warn, rel, i, "expected rule_name and rule_content")
				continue
			}
			docs = append(docs, document{
				source: rel,
				index:  i,
				text:   rule.RuleContent,
				payload: map[string]interface{}{
					"rule_name":    rule.RuleName,
					"rule_content": rule.RuleContent,
					"type":         "procedural_rule",
				},
			})
		}
	})
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return &memerrors.DataLoadingError{Path: sourceDir, Err: fmt.Errorf("no valid procedural rules found")}
	}
	return r.write(ctx, changetracker.CategoryProcedural, collection, docs)
}

// WarnFunc starts a warning log event, e.g. logger.Warn.
type WarnFunc func() *zerolog.Event

func warnf(warn WarnFunc, file string, index int, msg string) {
	if warn == nil {
		return
	}
	warn().Str("file", file).Int("index", index).Msg("Skipping malformed item: " + msg)
}
