package store

// Integration coverage for openPG lives in sql_adapter_integration_test.go; it
// starts postgres in a container and only builds with the integration_pg tag.
