package grpc_control

import (
	"encoding/json"
	"fmt"

	"nepse-observer/src/models"

	"google.golang.org/protobuf/types/known/structpb"
)

// Job statuses travel as structpb.Struct keyed by their json names, so the
// control service needs no generated message types.

func statusToStruct(st models.MJobStatus) (*structpb.Struct, error) {
	fields, err := statusFields(st)
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(fields)
}

func statusFields(st models.MJobStatus) (map[string]any, error) {
	raw, err := json.Marshal(st)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func statusesToList(list []models.MJobStatus) (*structpb.ListValue, error) {
	items := make([]any, 0, len(list))
	for _, st := range list {
		fields, err := statusFields(st)
		if err != nil {
			return nil, err
		}
		items = append(items, fields)
	}
	return structpb.NewList(items)
}

// -----------------------------------------------------------------------------

// structToStatus goes through encoding/json on AsMap: numbers come back as
// float64 and must print without exponents to fit the int64 fields.
func structToStatus(s *structpb.Struct) (models.MJobStatus, error) {
	var st models.MJobStatus
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return st, fmt.Errorf("decode job status: %w", err)
	}
	return st, nil
}

func listToStatuses(l *structpb.ListValue) ([]models.MJobStatus, error) {
	out := make([]models.MJobStatus, 0, len(l.GetValues()))
	for _, v := range l.GetValues() {
		st, err := structToStatus(v.GetStructValue())
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}
