// Package pb holds the wire representation of incidents.
//
// Messages are google.protobuf.Struct and ListValue values with a fixed set
// of snake_case fields, shared by the gRPC transport and the JSON file
// repository. Conversions validate field types and report the first
// malformed field.
package pb
