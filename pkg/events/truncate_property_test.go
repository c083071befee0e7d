package events

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/reportforge/reportforge/pkg/models"
)

// TestTruncateIfNeededProperties checks the NOTIFY size guard: payloads
// of any size stay under PostgreSQL's limit, and the routing fields a
// client needs to trigger catchup always survive.
func TestTruncateIfNeededProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	genPayloadJSON := gopter.CombineGens(
		gen.Identifier(),
		gen.IntRange(1, 100000),
		gen.IntRange(0, 20000),
	).Map(func(vals []interface{}) []byte {
		raw, err := json.Marshal(ProgressPayload{
			Type:        EventTypeProgress,
			ExecutionID: "exec-" + vals[0].(string),
			Seq:         vals[1].(int),
			Status:      models.ExecutionStatusAnalyzing,
			Stage:       models.StageAnalyzing,
			Percent:     50,
			Message:     strings.Repeat("x", vals[2].(int)),
		})
		if err != nil {
			panic(err)
		}
		return raw
	})

	properties.Property("notify payloads always fit under the limit", prop.ForAll(
		func(raw []byte) bool {
			out, err := truncateIfNeeded(raw)
			return err == nil && len(out) <= notifyLimit
		},
		genPayloadJSON,
	))

	properties.Property("routing fields survive truncation", prop.ForAll(
		func(raw []byte) bool {
			out, err := truncateIfNeeded(raw)
			if err != nil {
				return false
			}
			var original, routed struct {
				Type        string `json:"type"`
				ExecutionID string `json:"execution_id"`
				Seq         int    `json:"seq"`
			}
			if err := json.Unmarshal(raw, &original); err != nil {
				return false
			}
			if err := json.Unmarshal([]byte(out), &routed); err != nil {
				return false
			}
			return routed == original
		},
		genPayloadJSON,
	))

	properties.Property("small payloads are passed through verbatim", prop.ForAll(
		func(raw []byte) bool {
			if len(raw) > notifyLimit {
				return true
			}
			out, err := truncateIfNeeded(raw)
			return err == nil && out == string(raw)
		},
		genPayloadJSON,
	))

	properties.TestingRun(t)
}
