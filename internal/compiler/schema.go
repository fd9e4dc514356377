package compiler

// operationSchemaJSON — JSON Schema спецификации операции.
const operationSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "operation.json",
  "title": "Operation",
  "type": "object",
  "required": ["kind"],
  "additionalProperties": false,
  "properties": {
    "version": {"type": "string"},
    "kind": {"type": "string", "enum": ["job", "service", "dag", "matrix", "schedule", "tuner", "notifier"]},
    "name": {"type": "string", "pattern": "^[A-Za-z0-9][A-Za-z0-9._-]*$"},
    "description": {"type": "string"},
    "inputs": {"type": "array", "items": {"$ref": "#/$defs/param"}},
    "outputs": {"type": "array", "items": {"$ref": "#/$defs/param"}},
    "contexts": {"type": "array", "items": {"$ref": "#/$defs/param"}},
    "init": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "properties": {
          "connection": {"type": "string"},
          "artifacts": {"type": "array", "items": {"type": "string"}},
          "paths": {"type": "array", "items": {"type": "string"}},
          "git": {"type": "string"},
          "container": {"$ref": "#/$defs/container"}
        }
      }
    },
    "connections": {"type": "array", "items": {"type": "string"}},
    "container": {"$ref": "#/$defs/container"},
    "sidecars": {"type": "array", "items": {"$ref": "#/$defs/container"}},
    "ports": {"type": "array", "items": {"type": "integer", "minimum": 1, "maximum": 65535}},
    "replicas": {"type": "integer", "minimum": 0},
    "cache": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "disable": {"type": "boolean"},
        "ttl": {"type": "integer", "minimum": 0},
        "io": {"type": "array", "items": {"type": "string"}},
        "sections": {
          "type": "array",
          "items": {"type": "string", "pattern": "(?i)^(inputs|outputs|contexts|init|connections|containers)$"}
        }
      }
    },
    "concurrency": {"type": "integer"},
    "max_budget": {"type": "integer", "minimum": 0},
    "component": {"type": "string"}
  },
  "allOf": [
    {
      "if": {"properties": {"kind": {"enum": ["job", "service"]}}},
      "then": {"required": ["container"]}
    }
  ],
  "$defs": {
    "param": {
      "type": "object",
      "required": ["name"],
      "additionalProperties": false,
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "value": {},
        "is_optional": {"type": "boolean"},
        "connection": {"type": "string"}
      }
    },
    "container": {
      "type": "object",
      "required": ["image"],
      "additionalProperties": false,
      "properties": {
        "name": {"type": "string"},
        "image": {"type": "string", "minLength": 1},
        "command": {"type": "array", "items": {"type": "string"}},
        "args": {"type": "array", "items": {"type": "string"}},
        "env": {"type": "object", "additionalProperties": {"type": "string"}},
        "resources": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "cpu": {"type": "string"},
            "memory": {"type": "string"},
            "gpu": {"type": "string"}
          }
        }
      }
    }
  }
}`
