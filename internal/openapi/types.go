package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"

	"github.com/zamadev/sandbox/internal/model"
)

// Property schema builders. Each returns a fresh Schema so callers may set
// descriptions without aliasing.

func stringProp(desc string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Description: desc}}
}

func intProp(desc string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64", Description: desc}}
}

func numberProp(desc string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"number"}, Format: "double", Description: desc}}
}

func boolProp(desc string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}, Description: desc}}
}

func dateTimeProp(desc string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time", Description: desc}}
}

func nullable(s *openapi3.SchemaRef) *openapi3.SchemaRef {
	s.Value.Nullable = true
	return s
}

func enumProp(desc string, values ...string) *openapi3.SchemaRef {
	enum := make([]interface{}, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Enum: enum, Description: desc}}
}

func arrayOf(items *openapi3.SchemaRef) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"array"}, Items: items}}
}

func object(required []string, props openapi3.Schemas) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: props,
		Required:   required,
	}}
}

func ref(name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
}

func requestTypeEnum() *openapi3.SchemaRef {
	vals := make([]string, len(model.AllRequestTypes))
	for i, t := range model.AllRequestTypes {
		vals[i] = string(t)
	}
	return enumProp("HTTP status class of the request.", vals...)
}

// modelSchemas returns the component schemas of every type the API exchanges.
func modelSchemas() openapi3.Schemas {
	nameProp := stringProp("Display name, 1 to 100 characters.")
	minLen := uint64(1)
	maxLen := uint64(model.KeyNameMaxLen)
	nameProp.Value.MinLength = minLen
	nameProp.Value.MaxLength = &maxLen

	return openapi3.Schemas{
		"User": object([]string{"id", "email", "name", "role"}, openapi3.Schemas{
			"id":    stringProp(""),
			"email": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "email"}},
			"name":  stringProp(""),
			"role":  enumProp("", string(model.RoleUser), string(model.RoleAdmin), string(model.RoleGuest)),
		}),
		"AuthToken": object([]string{"accessToken", "refreshToken", "expiresIn", "createdAt"}, openapi3.Schemas{
			"accessToken":  stringProp("Bearer token for the /api/v1 endpoints."),
			"refreshToken": stringProp(""),
			"expiresIn":    intProp("Validity window in seconds."),
			"createdAt":    intProp("Issue time in epoch milliseconds."),
		}),
		"Session": object([]string{"token", "user"}, openapi3.Schemas{
			"token": ref("AuthToken"),
			"user":  ref("User"),
		}),
		"LoginRequest": object([]string{"email", "password"}, openapi3.Schemas{
			"email":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "email"}},
			"password": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, MinLength: 6}},
		}),
		"APIKey": object([]string{"id", "name", "key", "maskedKey", "status", "createdAt", "userId"}, openapi3.Schemas{
			"id":         stringProp(""),
			"name":       nameProp,
			"key":        stringProp("Plaintext secret, zk_ followed by 32 hex characters."),
			"maskedKey":  stringProp("Display form of the secret."),
			"status":     enumProp("Revocation is permanent.", string(model.KeyActive), string(model.KeyRevoked)),
			"createdAt":  dateTimeProp(""),
			"lastUsedAt": nullable(dateTimeProp("")),
			"userId":     stringProp(""),
		}),
		"CreateKeyRequest": object([]string{"name"}, openapi3.Schemas{
			"name": nameProp,
		}),
		"UsageEvent": object([]string{"type", "cost", "date", "kind", "count"}, openapi3.Schemas{
			"type":  requestTypeEnum(),
			"cost":  numberProp(""),
			"date":  dateTimeProp(""),
			"kind":  enumProp("", string(model.EventRequest), string(model.EventError), string(model.EventCustom)),
			"count": intProp("At least 1."),
		}),
		"DailyUsage": object([]string{"date", "totalRequests", "requests2xx", "requests4xx", "requests5xx", "totalCost", "events"}, openapi3.Schemas{
			"date":          dateTimeProp(""),
			"totalRequests": intProp(""),
			"requests2xx":   intProp(""),
			"requests4xx":   intProp(""),
			"requests5xx":   intProp(""),
			"totalCost":     numberProp(""),
			"events":        arrayOf(ref("UsageEvent")),
		}),
		"KeyUsage": object([]string{"keyId", "userId", "dailyUsage"}, openapi3.Schemas{
			"keyId":      stringProp(""),
			"userId":     stringProp(""),
			"dailyUsage": arrayOf(ref("DailyUsage")),
		}),
		"ChartRow": object(nil, openapi3.Schemas{
			"date":          stringProp("YYYY-MM-DD"),
			"totalRequests": intProp(""),
			"requests2xx":   intProp(""),
			"requests4xx":   intProp(""),
			"requests5xx":   intProp(""),
			"totalCost":     numberProp("Rounded to cents."),
		}),
		"UsageSummary": object(nil, openapi3.Schemas{
			"totalRequests":     intProp(""),
			"totalCost":         numberProp(""),
			"avgRequestsPerDay": numberProp(""),
			"avgCostPerDay":     numberProp(""),
			"successRate":       numberProp("Percentage of 2xx requests."),
			"errorRate":         numberProp("Percentage of 4xx and 5xx requests."),
		}),
		"CodeExample": object([]string{"title", "code"}, openapi3.Schemas{
			"title": stringProp(""),
			"code":  stringProp(""),
		}),
		"Features": object(nil, openapi3.Schemas{
			"enableThemeToggle": boolProp(""),
		}),
	}
}
