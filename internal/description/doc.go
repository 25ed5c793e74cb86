// Package description parses recipe and profile descriptions into typed
// models. A description is given either inline as JSON text or as a path to
// a file in JSON or native HCL syntax; both are read through the HCL parser
// so object keys keep their declaration order, which defines run order.
//
// The models are structural only. Semantic checks (buffer types, resource
// references, argument indices) belong to the recipe and profile packages.
package description
