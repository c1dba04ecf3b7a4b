package types

// JSONMap is a free-form jsonb payload persisted with GORM's json serializer.
type JSONMap map[string]any
