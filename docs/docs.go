// Package docs registers the OpenAPI description served on /swagger.
// Regenerate with `swag init -g cmd/main.go` after changing handler annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Health check",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/auth/sign-up": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Create a controller account",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.authCredentials"}}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}
            }
        },
        "/auth/sign-in": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Issue a bearer token",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.authCredentials"}}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "401": {"description": "Unauthorized"}}
            }
        },
        "/api/v1/accessories": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["accessories"],
                "summary": "List accessories",
                "responses": {"200": {"description": "count, accessories"}, "401": {"description": "Unauthorized"}}
            }
        },
        "/api/v1/accessories/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["accessories"],
                "summary": "Get accessory snapshot",
                "parameters": [{"type": "string", "description": "Device id", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.DeviceSnapshot"}},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/api/v1/accessories/{id}/current-position": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["accessories"],
                "summary": "Get current position",
                "parameters": [{"type": "string", "description": "Device id", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "value"}, "404": {"description": "Not Found"}}
            }
        },
        "/api/v1/accessories/{id}/target-position": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["accessories"],
                "summary": "Get target position",
                "parameters": [{"type": "string", "description": "Device id", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "value"}, "404": {"description": "Not Found"}}
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "description": "Blocks until the gateway acknowledges. On failure the target is reverted.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["accessories"],
                "summary": "Set target position",
                "parameters": [
                    {"type": "string", "description": "Device id", "name": "id", "in": "path", "required": true},
                    {"description": "Target payload", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.SetTargetRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.DeviceSnapshot"}},
                    "400": {"description": "Bad Request"},
                    "404": {"description": "Not Found"},
                    "409": {"description": "Conflict"},
                    "502": {"description": "Bad Gateway"},
                    "503": {"description": "Service Unavailable"},
                    "504": {"description": "Gateway Timeout"}
                }
            }
        },
        "/api/v1/accessories/{id}/battery": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["accessories"],
                "summary": "Get battery level and low battery flag",
                "parameters": [{"type": "string", "description": "Device id", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "value, low"}, "404": {"description": "Not Found"}}
            }
        },
        "/api/v1/logs": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["logs"],
                "summary": "List logs",
                "parameters": [
                    {"type": "string", "name": "from", "in": "query"},
                    {"type": "string", "name": "to", "in": "query"},
                    {"enum": ["CONNECT", "DISCONNECT", "COMMAND", "COMMAND_FAILED", "STOPPED"], "type": "string", "name": "type", "in": "query"},
                    {"type": "string", "name": "device", "in": "query"},
                    {"type": "integer", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "count, events"}, "400": {"description": "Bad Request"}}
            }
        },
        "/ws": {
            "get": {
                "description": "Sends every snapshot once as type=state, then one type=snapshot message per change.",
                "tags": ["accessories"],
                "summary": "Stream accessory snapshots",
                "parameters": [{"type": "string", "name": "device", "in": "query"}],
                "responses": {}
            }
        }
    },
    "definitions": {
        "handlers.authCredentials": {
            "type": "object",
            "required": ["password", "username"],
            "properties": {"password": {"type": "string"}, "username": {"type": "string"}}
        },
        "handlers.SetTargetRequest": {
            "type": "object",
            "required": ["value"],
            "properties": {"value": {"type": "integer", "example": 70}}
        },
        "models.DeviceSnapshot": {
            "type": "object",
            "properties": {
                "device_id": {"type": "string"},
                "name": {"type": "string"},
                "current_position": {"type": "integer"},
                "target_position": {"type": "integer"},
                "battery_level": {"type": "integer"},
                "low_battery_threshold": {"type": "integer"},
                "observed": {"type": "boolean"},
                "updated_at": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Blinds Bridge API",
	Description:      "Control and observe gateway-connected roller blinds.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
