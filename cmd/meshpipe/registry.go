package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/meshpipe/meshpipe/pkg/config"
	"github.com/meshpipe/meshpipe/pkg/domain"
	"github.com/meshpipe/meshpipe/pkg/storage"
)

// builtinRegistry seeds the factory registry with the storage-backed
// elements the CLI can assemble from configuration alone. Items flow through
// these elements as map[string]any decoded from JSON; applications with
// typed models register their own factories instead.
func builtinRegistry(logger *slog.Logger) *config.Registry {
	reg := config.NewRegistry()

	// memory:
	//   options:
	//     types: {user: id, order: order_id}
	reg.RegisterElement("memory", func(opts map[string]any) (any, error) {
		types, err := typeFieldMap(opts)
		if err != nil {
			return nil, err
		}
		indexes := make(map[domain.Key]storage.IndexFunc, len(types))
		for key, field := range types {
			indexes[key] = mapIndex(field)
		}
		return storage.NewMemoryStore(indexes, logger), nil
	})

	// sqlite:
	//   options:
	//     path: pipeline.db
	//     types: {user: id}
	reg.RegisterElement("sqlite", func(opts map[string]any) (any, error) {
		path, _ := opts["path"].(string)
		if path == "" {
			return nil, fmt.Errorf("sqlite element requires a path option")
		}
		types, err := typeFieldMap(opts)
		if err != nil {
			return nil, err
		}
		codecs := make(map[domain.Key]storage.Codec, len(types))
		for key, field := range types {
			codecs[key] = jsonCodec(field)
		}
		return storage.OpenSQLiteStore(path, codecs, logger)
	})

	// http:
	//   options:
	//     endpoints:
	//       user: {url: "https://api.example.com/users/{id}", many_url: "..."}
	reg.RegisterElement("http", func(opts map[string]any) (any, error) {
		raw, ok := opts["endpoints"].(map[string]any)
		if !ok || len(raw) == 0 {
			return nil, fmt.Errorf("http element requires an endpoints option")
		}
		endpoints := make(map[domain.Key]storage.Endpoint, len(raw))
		for name, v := range raw {
			spec, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("http endpoint %q must be a mapping", name)
			}
			u, _ := spec["url"].(string)
			if u == "" {
				return nil, fmt.Errorf("http endpoint %q has no url", name)
			}
			manyURL, _ := spec["many_url"].(string)
			endpoints[domain.Key(name)] = storage.Endpoint{
				URL:        u,
				ManyURL:    manyURL,
				Decode:     decodeJSONItem,
				DecodeMany: decodeJSONItems,
			}
		}
		return storage.NewHTTPSource(endpoints, nil, logger), nil
	})

	return reg
}

func typeFieldMap(opts map[string]any) (map[domain.Key]string, error) {
	raw, ok := opts["types"].(map[string]any)
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("element requires a types option mapping type to id field")
	}
	types := make(map[domain.Key]string, len(raw))
	for name, v := range raw {
		field, ok := v.(string)
		if !ok || field == "" {
			return nil, fmt.Errorf("type %q must name its id field", name)
		}
		types[domain.Key(name)] = field
	}
	return types, nil
}

func mapIndex(field string) storage.IndexFunc {
	return func(item any) string {
		if m, ok := item.(map[string]any); ok {
			return fmt.Sprintf("%v", m[field])
		}
		return fmt.Sprintf("%v", item)
	}
}

func jsonCodec(field string) storage.Codec {
	index := mapIndex(field)
	return storage.Codec{
		Encode: func(item any) (string, []byte, error) {
			payload, err := json.Marshal(item)
			if err != nil {
				return "", nil, err
			}
			return index(item), payload, nil
		},
		Decode: decodeJSONItem,
	}
}

func decodeJSONItem(body []byte) (any, error) {
	var item map[string]any
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("failed to decode item: %w", err)
	}
	return item, nil
}

func decodeJSONItems(body []byte) ([]any, error) {
	var items []map[string]any
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out, nil
}
