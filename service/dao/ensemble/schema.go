package ensemble

// documentSchema is the JSON Schema every ensemble document is validated
// against before it is mapped onto the model. Embedded as a constant to
// avoid filesystem dependencies.
const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://conductor.dev/schemas/ensemble.json",
  "type": "object",
  "required": ["name", "flow"],
  "properties": {
    "name": {
      "type": "string",
      "minLength": 1
    },
    "description": { "type": "string" },
    "version": { "type": "string" },
    "flow": {
      "type": "array",
      "items": { "$ref": "#/$defs/step" }
    },
    "state": {
      "type": "object",
      "properties": {
        "schema": {
          "type": "object",
          "additionalProperties": { "type": "string" }
        },
        "initial": { "type": "object" }
      },
      "additionalProperties": false
    },
    "scoring": { "$ref": "#/$defs/scoring" },
    "output": {}
  },
  "additionalProperties": false,
  "$defs": {
    "step": {
      "type": "object",
      "required": ["agent"],
      "properties": {
        "id": {
          "type": "string",
          "minLength": 1
        },
        "agent": {
          "type": "string",
          "minLength": 1
        },
        "input": {},
        "state": {
          "type": "object",
          "properties": {
            "use": {
              "type": "array",
              "items": { "type": "string" }
            },
            "set": {
              "type": "array",
              "items": { "type": "string" }
            }
          },
          "additionalProperties": false
        },
        "scoring": {
          "type": "object",
          "properties": {
            "evaluator": { "type": "string" },
            "thresholds": { "$ref": "#/$defs/thresholds" },
            "maxRetries": {
              "type": "integer",
              "minimum": 0
            },
            "backoff": { "$ref": "#/$defs/backoff" }
          },
          "additionalProperties": false
        },
        "timeout": {
          "type": "string",
          "pattern": "^[0-9]+(ns|us|µs|ms|s|m|h)$"
        }
      },
      "additionalProperties": false
    },
    "thresholds": {
      "type": "object",
      "properties": {
        "minimum": {
          "type": "number",
          "minimum": 0,
          "maximum": 1
        },
        "target": {
          "type": "number",
          "minimum": 0,
          "maximum": 1
        }
      },
      "additionalProperties": false
    },
    "backoff": {
      "type": "object",
      "properties": {
        "type": {
          "type": "string",
          "enum": ["fixed", "linear", "exponential"]
        },
        "delay": {
          "type": "string",
          "pattern": "^[0-9]+(ns|us|µs|ms|s|m|h)$"
        },
        "maxDelay": {
          "type": "string",
          "pattern": "^[0-9]+(ns|us|µs|ms|s|m|h)$"
        }
      },
      "additionalProperties": false
    },
    "scoring": {
      "type": "object",
      "properties": {
        "enabled": { "type": "boolean" },
        "thresholds": { "$ref": "#/$defs/thresholds" },
        "maxRetries": {
          "type": "integer",
          "minimum": 0
        },
        "backoff": { "$ref": "#/$defs/backoff" },
        "method": {
          "type": "string",
          "enum": ["weighted_average", "minimum", "geometric_mean"]
        },
        "weights": {
          "type": "object",
          "additionalProperties": { "type": "number" }
        }
      },
      "additionalProperties": false
    }
  }
}`
