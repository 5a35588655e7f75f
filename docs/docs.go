// Package docs holds the swagger description of the admin API, in the layout
// written by `swag init -g cmd/main.go -o docs`. Rerun it after changing the
// controller annotations.
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
        "/sync/products": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Categories first, then every remote product in the configured mode. Blocks until the pass ends or is stopped.",
                "produces": ["application/json"],
                "tags": ["Sync"],
                "summary": "Run a catalog sync",
                "responses": {
                    "200": {"description": "SyncResult", "schema": {"type": "object", "additionalProperties": true}},
                    "403": {"description": "sync disabled", "schema": {"type": "object", "additionalProperties": true}},
                    "409": {"description": "sync in progress", "schema": {"type": "object", "additionalProperties": true}},
                    "429": {"description": "cooling down", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/sync/products/{remote_id}": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Sync"],
                "summary": "Re-import one remote product",
                "parameters": [{"type": "string", "description": "MoySklad product id", "name": "remote_id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "outcome", "schema": {"type": "object", "additionalProperties": true}},
                    "502": {"description": "remote error", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/sync/categories": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Sync"],
                "summary": "Run a category sync",
                "responses": {
                    "200": {"description": "SyncResult", "schema": {"type": "object", "additionalProperties": true}},
                    "409": {"description": "sync in progress", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/sync/inventory": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Sync"],
                "summary": "Run an inventory sync",
                "responses": {
                    "200": {"description": "SyncResult", "schema": {"type": "object", "additionalProperties": true}},
                    "409": {"description": "sync in progress", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/sync/orders": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Sync"],
                "summary": "Push pending orders",
                "responses": {
                    "200": {"description": "SyncResult", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/sync/stop": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Sync"],
                "summary": "Stop running syncs at their next checkpoint",
                "responses": {
                    "200": {"description": "running flag", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/sync/reset-limits": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Sync"],
                "summary": "Close tripped rate-limit latches",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/sync/status": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Sync"],
                "summary": "Running sessions, tasks and last sync times",
                "responses": {
                    "200": {"description": "SyncStatusResponse", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/sync/test-connection": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Sync"],
                "summary": "Check the MoySklad credentials",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "502": {"description": "remote error", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/webhook/moysklad": {
            "post": {
                "description": "Called by MoySklad. Authenticated by the X-Webhook-Secret header, not by JWT.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Webhook"],
                "summary": "MoySklad webhook callback",
                "parameters": [
                    {"type": "string", "description": "shared secret", "name": "X-Webhook-Secret", "in": "header"},
                    {"description": "events", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/moysklad.WebhookPayload"}}
                ],
                "responses": {
                    "200": {"description": "handled", "schema": {"type": "object", "additionalProperties": true}},
                    "202": {"description": "queued", "schema": {"type": "object", "additionalProperties": true}},
                    "401": {"description": "bad secret", "schema": {"type": "object", "additionalProperties": true}},
                    "403": {"description": "webhooks disabled", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/webhooks": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Webhook"],
                "summary": "Register product, variant and order webhooks",
                "parameters": [{"description": "callback url override", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/controller.registerWebhooksRequest"}}],
                "responses": {
                    "200": {"description": "registrations", "schema": {"type": "object", "additionalProperties": true}},
                    "400": {"description": "no callback url", "schema": {"type": "object", "additionalProperties": true}},
                    "502": {"description": "missing rights", "schema": {"type": "object", "additionalProperties": true}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Webhook"],
                "summary": "Remove webhooks pointing at this service",
                "responses": {
                    "200": {"description": "removed count", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        }
    },
    "definitions": {
        "controller.registerWebhooksRequest": {
            "type": "object",
            "properties": {
                "url": {"type": "string"}
            }
        },
        "moysklad.WebhookPayload": {
            "type": "object",
            "properties": {
                "events": {"type": "array", "items": {"type": "object"}}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "MoySklad Sync API",
	Description:      "Admin API of the MoySklad storefront synchronization service.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
