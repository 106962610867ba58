package elastic

// indexDefinition is the fixed schema applied to every index: strings
// map to normalized lowercase keywords with a text sub-field, longs to
// integers, timestamp-like attributes to dates, connections to a nested
// object, and the result window ceiling is raised for deep pagination.
const indexDefinition = `{
  "settings": {
    "index": {
      "max_result_window": 100000
    },
    "analysis": {
      "normalizer": {
        "string_normalizer": {
          "type": "custom",
          "filter": ["lowercase", "asciifolding"]
        }
      }
    }
  },
  "mappings": {
    "dynamic_templates": [
      {
        "integers": {
          "match_mapping_type": "long",
          "mapping": {
            "type": "integer"
          }
        }
      },
      {
        "strings": {
          "match_mapping_type": "string",
          "mapping": {
            "type": "keyword",
            "normalizer": "string_normalizer",
            "ignore_above": 512,
            "fields": {
              "text": {
                "type": "text"
              }
            }
          }
        }
      }
    ],
    "properties": {
      "internal_id": { "type": "keyword" },
      "standard_id": { "type": "keyword" },
      "created_at": { "type": "date" },
      "updated_at": { "type": "date" },
      "first_seen": { "type": "date" },
      "last_seen": { "type": "date" },
      "start_time": { "type": "date" },
      "stop_time": { "type": "date" },
      "published": { "type": "date" },
      "valid_from": { "type": "date" },
      "valid_until": { "type": "date" },
      "confidence": { "type": "integer" },
      "connections": {
        "type": "nested",
        "properties": {
          "internal_id": { "type": "keyword" },
          "name": { "type": "keyword", "normalizer": "string_normalizer" },
          "types": { "type": "keyword" },
          "role": { "type": "keyword" }
        }
      }
    }
  }
}`
