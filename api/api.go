// Package api хранит OpenAPI-описание служебного HTTP бота поддержки.
package api

import _ "embed"

//go:embed openapi.json
var OpenAPISpec []byte
