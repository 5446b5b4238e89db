// ABOUTME: Package documentation for tools
// ABOUTME: Describes the tool registry and the meal-finding tool pack

// Package tools provides the registry of callable tools exposed to the AI
// service and the handlers behind them.
//
// Tools register by name with a JSON schema definition; the orchestrator
// dispatches calls through Invoke, which never fails. Unknown names and
// handler errors become structured {"error": ...} payloads that flow back
// into the conversation so the AI service can recover on its own.
package tools
