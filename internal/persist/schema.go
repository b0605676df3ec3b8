// v1
// internal/persist/schema.go
package persist

import (
	"encoding/json"
	"fmt"
	"time"

	"nrgchamp/recommender/internal/bands"
	"nrgchamp/recommender/internal/learning"
)

// SchemaVersion tags every persisted document so future migrations can
// tell generations apart.
const SchemaVersion = 1

type contextDoc struct {
	Q      []float64 `json:"q"`
	Visits []int     `json:"visits"`
}

type entityDoc struct {
	SchemaVersion             int                        `json:"schemaVersion"`
	Contexts                  map[string]contextDoc      `json:"contexts"`
	TotalRecommendations      int                        `json:"totalRecommendations"`
	SuccessfulRecommendations int                        `json:"successfulRecommendations"`
	PersonalizedBias          float64                    `json:"personalizedBias"`
	AdaptationHistory         []learning.AdaptationEvent `json:"adaptationHistory"`
}

type paramsDoc struct {
	SchemaVersion int       `json:"schemaVersion"`
	Epsilon       float64   `json:"epsilon"`
	SavedAt       time.Time `json:"savedAt"`
}

func encodeEntity(es learning.EntitySnapshot) ([]byte, error) {
	doc := entityDoc{
		SchemaVersion:             SchemaVersion,
		Contexts:                  make(map[string]contextDoc, len(es.Contexts)),
		TotalRecommendations:      es.TotalRecommendations,
		SuccessfulRecommendations: es.SuccessfulRecommendations,
		PersonalizedBias:          es.Bias,
		AdaptationHistory:         es.History,
	}
	for key, cs := range es.Contexts {
		doc.Contexts[key.String()] = contextDoc{
			Q:      append([]float64(nil), cs.Q[:]...),
			Visits: append([]int(nil), cs.Visits[:]...),
		}
	}
	return json.Marshal(doc)
}

func decodeEntity(entityID string, raw []byte) (learning.EntitySnapshot, error) {
	var doc entityDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return learning.EntitySnapshot{}, fmt.Errorf("decode entity %s: %w", entityID, err)
	}
	es := learning.EntitySnapshot{
		EntityID:                  entityID,
		Contexts:                  make(map[bands.Key]learning.ContextStats, len(doc.Contexts)),
		TotalRecommendations:      doc.TotalRecommendations,
		SuccessfulRecommendations: doc.SuccessfulRecommendations,
		Bias:                      doc.PersonalizedBias,
		History:                   doc.AdaptationHistory,
	}
	for rawKey, cd := range doc.Contexts {
		key, err := bands.ParseKey(rawKey)
		if err != nil {
			return learning.EntitySnapshot{}, fmt.Errorf("entity %s: %w", entityID, err)
		}
		if len(cd.Q) != learning.NumActions || len(cd.Visits) != learning.NumActions {
			return learning.EntitySnapshot{}, fmt.Errorf("entity %s context %s: action space size mismatch", entityID, rawKey)
		}
		var cs learning.ContextStats
		copy(cs.Q[:], cd.Q)
		copy(cs.Visits[:], cd.Visits)
		es.Contexts[key] = cs
	}
	return es, nil
}
