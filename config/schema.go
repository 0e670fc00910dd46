package wampConfig

import (
	"github.com/invopop/jsonschema"
)

func GenerateJSONSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{ExpandedStruct: true}
	return reflector.Reflect(new(T))
}

// RealmsSchema describes the canonical object shape of the realms file
func RealmsSchema() *jsonschema.Schema {
	return GenerateJSONSchema[RealmsFile]()
}
