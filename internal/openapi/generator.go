package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"
)

const (
	tagSession = "session"
	tagKeys    = "keys"
	tagUsage   = "usage"
	tagDocs    = "docs"
	tagSystem  = "system"
)

// GenerateConsoleSpec generates the OpenAPI 3.1 document of the console API.
func GenerateConsoleSpec(baseURL string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Developer Console API",
			Description: "Session, API key lifecycle and usage analytics endpoints of the developer console sandbox.",
			Version:     "1.0.0",
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = modelSchemas()
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
			Description:  "Access token issued by POST /api/v1/session.",
		},
	}
	doc.Security = openapi3.SecurityRequirements{
		{"bearerAuth": {}},
	}

	doc.Components.Schemas["ErrorResponse"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"error": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type: &openapi3.Types{"object"},
						Properties: openapi3.Schemas{
							"code":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
							"message": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
							"context": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
						},
					},
				},
			},
		},
	}

	doc.Paths = openapi3.NewPaths()
	addSystemPaths(doc)
	addSessionPaths(doc)
	addKeyPaths(doc)
	addUsagePaths(doc)
	addDocsPaths(doc)

	return doc
}

func addSystemPaths(doc *openapi3.T) {
	status := object(nil, openapi3.Schemas{"status": stringProp("")})
	doc.Paths.Set("/healthz", &openapi3.PathItem{
		Get: publicOperation(tagSystem, "health", "Liveness probe", newResponses("200", "Process is up", status)),
	})
	doc.Paths.Set("/readyz", &openapi3.PathItem{
		Get: publicOperation(tagSystem, "ready", "Readiness probe, pings the profile storage", newResponses("200", "Storage reachable", status)),
	})
	doc.Paths.Set("/openapi.json", &openapi3.PathItem{
		Get: publicOperation(tagSystem, "openapi", "This document", newResponses("200", "OpenAPI document",
			&openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}})),
	})
	doc.Paths.Set("/usage-data.json", &openapi3.PathItem{
		Get: publicOperation(tagSystem, "usage_fixture", "Usage fixture consumed by the usage service",
			newResponses("200", "Usage fixture", object([]string{"usageData"}, openapi3.Schemas{
				"usageData": arrayOf(ref("KeyUsage")),
			}))),
	})
}

func addSessionPaths(doc *openapi3.T) {
	login := publicOperation(tagSession, "login", "Sign in with email and password",
		newResponses("201", "Session created", ref("Session")))
	login.RequestBody = jsonBody("Credentials", ref("LoginRequest"))

	doc.Paths.Set("/api/v1/session", &openapi3.PathItem{
		Get: operation(tagSession, "get_session", "Current user, 401 when signed out or expired",
			newResponses("200", "Signed-in user", ref("User"))),
		Post: login,
		Delete: operation(tagSession, "logout", "Sign out and clear the stored session",
			noContentResponses()),
	})
	doc.Paths.Set("/api/v1/session/guest", &openapi3.PathItem{
		Post: publicOperation(tagSession, "continue_as_guest", "Start a guest session",
			newResponses("201", "Guest session created", ref("Session"))),
	})
	doc.Paths.Set("/api/v1/session/refresh", &openapi3.PathItem{
		Post: operation(tagSession, "refresh", "Replace the caller's token with a fresh one",
			newResponses("200", "Replacement token", ref("AuthToken"))),
	})
}

func addKeyPaths(doc *openapi3.T) {
	create := operation(tagKeys, "create_key", "Create an API key",
		newResponses("201", "Created key with its plaintext secret", ref("APIKey")))
	create.RequestBody = jsonBody("Key to create", ref("CreateKeyRequest"))

	doc.Paths.Set("/api/v1/keys", &openapi3.PathItem{
		Get: operation(tagKeys, "list_keys", "List the caller's API keys",
			newResponses("200", "Keys of the signed-in user", listSchema(ref("APIKey")))),
		Post: create,
	})

	keyParam := openapi3.Parameters{
		&openapi3.ParameterRef{
			Value: openapi3.NewPathParameter("keyId").
				WithDescription("Key identifier, key_<ms>_<suffix>.").
				WithSchema(openapi3.NewStringSchema()),
		},
	}

	regenerate := operation(tagKeys, "regenerate_key", "Revoke a key and mint a replacement with the same name",
		newResponses("201", "Replacement key", ref("APIKey")))
	regenerate.Responses.Set("409", errorResponse("Key already revoked"))

	doc.Paths.Set("/api/v1/keys/{keyId}", &openapi3.PathItem{
		Parameters: keyParam,
		Get: operation(tagKeys, "get_key", "Fetch one API key",
			newResponses("200", "Key", ref("APIKey"))),
		Delete: operation(tagKeys, "delete_key", "Delete an API key", noContentResponses()),
	})
	doc.Paths.Set("/api/v1/keys/{keyId}/revoke", &openapi3.PathItem{
		Parameters: keyParam,
		Post:       operation(tagKeys, "revoke_key", "Revoke an API key", noContentResponses()),
	})
	doc.Paths.Set("/api/v1/keys/{keyId}/regenerate", &openapi3.PathItem{
		Parameters: keyParam,
		Post:       regenerate,
	})
}

func addUsagePaths(doc *openapi3.T) {
	daily := operation(tagUsage, "daily_usage", "Usage aggregated per day, newest first",
		newResponses("200", "Daily usage", listSchema(ref("DailyUsage"))))
	daily.Parameters = usageQueryParameters()

	events := operation(tagUsage, "usage_events", "Individual usage events, newest first",
		newResponses("200", "Usage events", listSchema(ref("UsageEvent"))))
	events.Parameters = usageQueryParameters()

	chart := operation(tagUsage, "usage_chart", "Chart rows, oldest first",
		newResponses("200", "Chart rows", listSchema(ref("ChartRow"))))
	chart.Parameters = usageQueryParameters()

	summary := operation(tagUsage, "usage_summary", "Headline numbers of the window",
		newResponses("200", "Summary", ref("UsageSummary")))
	summary.Parameters = usageQueryParameters()

	export := operation(tagUsage, "usage_export", "CSV export of the window", csvResponses())
	export.Parameters = append(usageQueryParameters(), &openapi3.ParameterRef{
		Value: openapi3.NewQueryParameter("format").
			WithDescription("daily (default) or events.").
			WithSchema(openapi3.NewStringSchema().WithEnum("daily", "events")),
	})

	doc.Paths.Set("/api/v1/usage/daily", &openapi3.PathItem{Get: daily})
	doc.Paths.Set("/api/v1/usage/events", &openapi3.PathItem{Get: events})
	doc.Paths.Set("/api/v1/usage/chart", &openapi3.PathItem{Get: chart})
	doc.Paths.Set("/api/v1/usage/summary", &openapi3.PathItem{Get: summary})
	doc.Paths.Set("/api/v1/usage/export", &openapi3.PathItem{Get: export})
	doc.Paths.Set("/api/v1/usage/keys/{keyId}", &openapi3.PathItem{
		Parameters: openapi3.Parameters{
			&openapi3.ParameterRef{Value: openapi3.NewPathParameter("keyId").WithSchema(openapi3.NewStringSchema())},
		},
		Get: operation(tagUsage, "key_usage", "Usage history of one key",
			newResponses("200", "Key usage", ref("KeyUsage"))),
	})
	doc.Paths.Set("/api/v1/usage/cache/clear", &openapi3.PathItem{
		Post: operation(tagUsage, "clear_usage_cache", "Drop the cached usage dataset", noContentResponses()),
	})
}

func addDocsPaths(doc *openapi3.T) {
	examples := operation(tagDocs, "code_examples", "Integration snippets for a key",
		newResponses("200", "Snippets", listSchema(ref("CodeExample"))))
	examples.Parameters = openapi3.Parameters{
		&openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter("apiKey").
				WithDescription("Key to embed in the snippets. A placeholder is used when empty.").
				WithSchema(openapi3.NewStringSchema()),
		},
	}

	doc.Paths.Set("/api/v1/docs/examples", &openapi3.PathItem{Get: examples})
	doc.Paths.Set("/api/v1/docs/schemas", &openapi3.PathItem{
		Get: operation(tagDocs, "schema_reference", "Type signatures of the data models",
			newResponses("200", "Model name to signature", &openapi3.SchemaRef{Value: &openapi3.Schema{
				Type:                 &openapi3.Types{"object"},
				AdditionalProperties: openapi3.AdditionalProperties{Schema: stringProp("")},
			}})),
	})
	doc.Paths.Set("/api/v1/features", &openapi3.PathItem{
		Get: operation(tagDocs, "features", "Feature flags", newResponses("200", "Flags", ref("Features"))),
	})
}

func operation(tag, id, summary string, responses *openapi3.Responses) *openapi3.Operation {
	return &openapi3.Operation{
		Tags:        []string{tag},
		Summary:     summary,
		OperationID: id,
		Responses:   responses,
	}
}

// publicOperation is an operation that does not take the bearer token.
func publicOperation(tag, id, summary string, responses *openapi3.Responses) *openapi3.Operation {
	op := operation(tag, id, summary, responses)
	op.Security = &openapi3.SecurityRequirements{}
	return op
}

func jsonBody(description string, schema *openapi3.SchemaRef) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{
		Value: &openapi3.RequestBody{
			Description: description,
			Required:    true,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	}
}

// listSchema wraps items in the {"resource": [...], "meta": {...}} envelope.
func listSchema(items *openapi3.SchemaRef) *openapi3.SchemaRef {
	return object([]string{"resource"}, openapi3.Schemas{
		"resource": arrayOf(items),
		"meta":     metaSchema(),
	})
}

func usageQueryParameters() openapi3.Parameters {
	return openapi3.Parameters{
		&openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter("types").
				WithDescription("Comma-separated request types to keep (2xx,4xx,5xx). Empty keeps all.").
				WithSchema(openapi3.NewStringSchema()),
		},
		&openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter("preset").
				WithDescription("Date window ending today. Ignored when start and end are given.").
				WithSchema(openapi3.NewStringSchema().WithEnum("last7days", "last30days", "last90days")),
		},
		&openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter("start").
				WithDescription("First day of the window, YYYY-MM-DD.").
				WithSchema(openapi3.NewStringSchema().WithFormat("date")),
		},
		&openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter("end").
				WithDescription("Last day of the window, YYYY-MM-DD, inclusive.").
				WithSchema(openapi3.NewStringSchema().WithFormat("date")),
		},
	}
}

// newResponses builds a response set with the success entry and the standard
// error entries.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()

	successDesc := description
	responses.Set(statusCode, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &successDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})
	addErrorResponses(responses)
	return responses
}

func noContentResponses() *openapi3.Responses {
	responses := openapi3.NewResponses()
	desc := "Done"
	responses.Set("204", &openapi3.ResponseRef{Value: &openapi3.Response{Description: &desc}})
	addErrorResponses(responses)
	return responses
}

func csvResponses() *openapi3.Responses {
	responses := openapi3.NewResponses()
	desc := "CSV document"
	responses.Set("200", &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &desc,
			Content: openapi3.Content{
				"text/csv": &openapi3.MediaType{Schema: stringProp("")},
			},
		},
	})
	addErrorResponses(responses)
	return responses
}

func addErrorResponses(responses *openapi3.Responses) {
	responses.Set("400", errorResponse("Bad request"))
	responses.Set("401", errorResponse("Unauthorized"))
	responses.Set("404", errorResponse("Not found"))
	responses.Set("500", errorResponse("Internal server error"))
}

func errorResponse(description string) *openapi3.ResponseRef {
	return &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &description,
			Content:     openapi3.NewContentWithJSONSchemaRef(ref("ErrorResponse")),
		},
	}
}

func metaSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"count": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type:        &openapi3.Types{"integer"},
						Format:      "int64",
						Description: "Number of records in resource.",
					},
				},
				"skipped": arrayOf(object([]string{"index", "reason"}, openapi3.Schemas{
					"index":  intProp("Position of the record in the stored collection."),
					"id":     stringProp(""),
					"reason": stringProp(""),
				})),
			},
		},
	}
}

// SchemaNames returns the component schema names in a stable order, models first.
func SchemaNames(doc *openapi3.T) []string {
	names := make([]string, 0, len(doc.Components.Schemas))
	for _, n := range modelOrder {
		if _, ok := doc.Components.Schemas[n]; ok {
			names = append(names, n)
		}
	}
	return names
}

var modelOrder = []string{
	"User", "AuthToken", "Session", "LoginRequest",
	"APIKey", "CreateKeyRequest",
	"UsageEvent", "DailyUsage", "KeyUsage", "ChartRow", "UsageSummary",
	"CodeExample", "Features",
}
