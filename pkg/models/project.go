package models

type Project struct {
	Key  string `json:"key"`
	Name string `json:"name,omitempty"`
	// Created timestamp (ns)
	CreatedTS int64 `json:"created_ts,omitempty"`
	// Updated timestamp (ns)
	UpdatedTS int64 `json:"updated_ts,omitempty"`
}
