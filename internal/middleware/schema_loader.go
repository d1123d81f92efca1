package middleware

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	contextutils "learnapp/internal/utils"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// SchemaLoader loads JSON schemas from the OpenAPI specification and
// resolves request/response schemas per endpoint.
type SchemaLoader struct {
	schemas     map[string]*gojsonschema.Schema
	swaggerData map[string]interface{}
}

// NewSchemaLoader creates a new schema loader
func NewSchemaLoader() *SchemaLoader {
	return &SchemaLoader{
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// LoadSchemasFromSwagger loads all schemas from the OpenAPI specification file
func (sl *SchemaLoader) LoadSchemasFromSwagger(swaggerPath string) error {
	data, err := os.ReadFile(swaggerPath)
	if err != nil {
		return contextutils.WrapError(err, "failed to read swagger file")
	}
	return sl.LoadSchemasFromSwaggerFromData(data)
}

// LoadSchemasFromSwaggerFromData loads all schemas from raw OpenAPI YAML
func (sl *SchemaLoader) LoadSchemasFromSwaggerFromData(data []byte) error {
	var swagger map[string]interface{}
	if err := yaml.Unmarshal(data, &swagger); err != nil {
		return contextutils.WrapError(err, "failed to parse swagger file as YAML")
	}
	sl.swaggerData = swagger

	components, ok := swagger["components"].(map[string]interface{})
	if !ok {
		return contextutils.ErrorWithContextf("no components section found in swagger")
	}

	schemas, ok := components["schemas"].(map[string]interface{})
	if !ok {
		return contextutils.ErrorWithContextf("no schemas section found in swagger")
	}

	// Rewrite OpenAPI nullable annotations into JSON-schema union types
	jsonCompatibleSchemas := make(map[string]interface{})
	for schemaName, schemaData := range schemas {
		converted, err := convertToJSONCompatible(schemaData)
		if err != nil {
			fmt.Printf("Warning: failed to convert schema %s: %v\n", schemaName, err)
			continue
		}
		jsonCompatibleSchemas[schemaName] = converted
	}

	for schemaName := range jsonCompatibleSchemas {
		// Compile each schema with the full components context so $ref resolves
		completeSchemaDoc := map[string]interface{}{
			"$schema": "http://json-schema.org/draft-07/schema#",
			"components": map[string]interface{}{
				"schemas": jsonCompatibleSchemas,
			},
			"$ref": "#/components/schemas/" + schemaName,
		}

		schemaBytes, err := json.Marshal(completeSchemaDoc)
		if err != nil {
			fmt.Printf("Warning: failed to marshal schema %s: %v\n", schemaName, err)
			continue
		}

		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaBytes))
		if err != nil {
			fmt.Printf("Warning: failed to load schema %s: %v\n", schemaName, err)
			continue
		}

		sl.schemas[schemaName] = schema
	}

	return nil
}

// convertToJSONCompatible rewrites OpenAPI `nullable: true` into draft-07
// union types so gojsonschema accepts null values
func convertToJSONCompatible(data interface{}) (interface{}, error) {
	switch v := data.(type) {
	case map[string]interface{}:
		result := make(map[string]interface{})
		hasNullable := false

		for key, val := range v {
			if key == "nullable" {
				if nullable, ok := val.(bool); ok && nullable {
					hasNullable = true
					continue
				}
			}

			convertedVal, err := convertToJSONCompatible(val)
			if err != nil {
				return nil, err
			}
			result[key] = convertedVal
		}

		if hasNullable {
			if ref, hasRef := result["$ref"].(string); hasRef {
				result["oneOf"] = []interface{}{
					map[string]interface{}{"$ref": ref},
					map[string]interface{}{"enum": []interface{}{nil}},
				}
				delete(result, "$ref")
			} else if typeVal, hasType := result["type"].(string); hasType {
				result["type"] = []interface{}{typeVal, "null"}
			}
		}

		return result, nil
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, val := range v {
			convertedVal, err := convertToJSONCompatible(val)
			if err != nil {
				return nil, err
			}
			result[i] = convertedVal
		}
		return result, nil
	default:
		return data, nil
	}
}

// ValidateData validates data against a schema
func (sl *SchemaLoader) ValidateData(data interface{}, schemaName string) error {
	schema, exists := sl.schemas[schemaName]
	if !exists {
		return contextutils.ErrorWithContextf("schema %s not found", schemaName)
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return contextutils.WrapError(err, "failed to marshal data")
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(jsonData))
	if err != nil {
		return contextutils.WrapError(err, "validation error")
	}

	if !result.Valid() {
		var validationErrors []string
		for _, validationErr := range result.Errors() {
			validationErrors = append(validationErrors, fmt.Sprintf("%s: %s", validationErr.Field(), validationErr.Description()))
		}
		return contextutils.ErrorWithContextf("schema validation failed: %s", strings.Join(validationErrors, "; "))
	}

	return nil
}

// AutoLoadSchemas automatically loads schemas from the swagger file path
func AutoLoadSchemas() *SchemaLoader {
	loader := NewSchemaLoader()

	swaggerPath := os.Getenv("SWAGGER_FILE_PATH")
	if swaggerPath == "" {
		fmt.Printf("SWAGGER_FILE_PATH environment variable not set, schema validation disabled\n")
		return loader
	}

	if _, err := os.Stat(swaggerPath); err != nil {
		fmt.Printf("Swagger file not found at %s: %v\n", swaggerPath, err)
		return loader
	}

	if err := loader.LoadSchemasFromSwagger(swaggerPath); err != nil {
		fmt.Printf("Warning: failed to load schemas from %s: %v\n", swaggerPath, err)
	}

	return loader
}

// lookupOperation finds the operation object for a path+method, trying an
// exact path match first and parameterized patterns second
func (sl *SchemaLoader) lookupOperation(path, method string) map[string]interface{} {
	if sl.swaggerData == nil {
		return nil
	}

	paths, ok := sl.swaggerData["paths"].(map[string]interface{})
	if !ok {
		return nil
	}

	lookup := func(pathInfo interface{}) map[string]interface{} {
		pathMap, ok := pathInfo.(map[string]interface{})
		if !ok {
			return nil
		}
		methodInfo, ok := pathMap[strings.ToLower(method)].(map[string]interface{})
		if !ok {
			return nil
		}
		return methodInfo
	}

	if pathInfo, exists := paths[path]; exists {
		if op := lookup(pathInfo); op != nil {
			return op
		}
	}

	for swaggerPath, pathInfo := range paths {
		if sl.pathMatchesPattern(path, swaggerPath) {
			if op := lookup(pathInfo); op != nil {
				return op
			}
		}
	}

	return nil
}

// IsEndpointDocumented checks if an endpoint is documented in the swagger spec
func (sl *SchemaLoader) IsEndpointDocumented(path, method string) bool {
	return sl.lookupOperation(path, method) != nil
}

// pathMatchesPattern checks if a request path matches a swagger path pattern
func (sl *SchemaLoader) pathMatchesPattern(requestPath, swaggerPath string) bool {
	requestSegments := strings.Split(requestPath, "/")
	swaggerSegments := strings.Split(swaggerPath, "/")

	if len(requestSegments) != len(swaggerSegments) {
		return false
	}

	for i, swaggerSegment := range swaggerSegments {
		// Parameter segments accept any value
		if strings.HasPrefix(swaggerSegment, "{") && strings.HasSuffix(swaggerSegment, "}") {
			continue
		}
		if swaggerSegment != requestSegments[i] {
			return false
		}
	}

	return true
}

// schemaRefFromContent extracts the schema name referenced by the
// application/json content of a requestBody or response object
func schemaRefFromContent(container map[string]interface{}) string {
	content, ok := container["content"].(map[string]interface{})
	if !ok {
		return ""
	}

	jsonContent, ok := content["application/json"].(map[string]interface{})
	if !ok {
		return ""
	}

	schema, ok := jsonContent["schema"].(map[string]interface{})
	if !ok {
		return ""
	}

	ref, ok := schema["$ref"].(string)
	if !ok {
		return ""
	}

	if strings.HasPrefix(ref, "#/components/schemas/") {
		return strings.TrimPrefix(ref, "#/components/schemas/")
	}
	return ""
}

// DetermineRequestSchemaFromPath automatically determines the request body
// schema name from the API path and method
func (sl *SchemaLoader) DetermineRequestSchemaFromPath(path, method string) string {
	op := sl.lookupOperation(path, method)
	if op == nil {
		return ""
	}

	requestBody, ok := op["requestBody"].(map[string]interface{})
	if !ok {
		return ""
	}

	return schemaRefFromContent(requestBody)
}

// DetermineSchemaFromPath determines the response schema name for a given
// path and HTTP method by looking up the 200 response
func (sl *SchemaLoader) DetermineSchemaFromPath(path, method string) string {
	op := sl.lookupOperation(path, method)
	if op == nil {
		return ""
	}

	responses, ok := op["responses"].(map[string]interface{})
	if !ok {
		return ""
	}

	response200, ok := responses["200"].(map[string]interface{})
	if !ok {
		return ""
	}

	return schemaRefFromContent(response200)
}
