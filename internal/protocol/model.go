package protocol

import "github.com/shehryarbajwa/browserbase-chat/pkg/models"

type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the GET /v1/models body
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// NewModelList lists records in catalog order, owned by their group
func NewModelList(recs []models.ModelRecord) ModelList {
	list := ModelList{Object: ObjectList, Data: make([]Model, 0, len(recs))}
	for _, r := range recs {
		list.Data = append(list.Data, Model{
			ID:      r.ID,
			Object:  ObjectModel,
			Created: r.CreatedAt.Unix(),
			OwnedBy: r.Group,
		})
	}
	return list
}
