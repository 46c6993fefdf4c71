package oracle

import (
	"fmt"
	"strings"
)

const classifySystemPrompt = `You analyze actions in a web application for a security crawler.
The application's purpose: %s
Given one action (a link, form submission or UI event) and the page text around it, name the resource the action operates on and the operation it performs.
Categorize the operation as one of: create, read, update, delete, unknown. Use "block" for actions that end the session or destroy the account (logout, sign out, delete account).
Loading a form is a "read" with operation "load create form" or "load update form".
Resource names are lower-case words separated by spaces.
Answer with JSON only: {"resource": "...", "operation": "...", "CRUD_type": "..."}. Answer {} if you cannot tell.`

const verifySystemPrompt = `You check the outcome of an action executed by a security crawler in a web application.
The application's purpose: %s
You get the prediction made before execution, the HTTP status and the page text before and after.
Correct the prediction if it was wrong and decide whether the action succeeded: the expected change is visible, no error message is shown and the status is 2xx or 3xx.
Answer with JSON only: {"resource": "...", "operation": "...", "CRUD_type": "...", "success": true|false}.`

const dependencySystemPrompt = `Given two resources A and B of a web application, decide whether A is the parent of B: B cannot exist or function without A (a post and its comments, an order and its items).
Answer with JSON only: {"parent-child relationship": true} or {"parent-child relationship": false}.`

// maxPromptContext bounds the page text included per snapshot.
const maxPromptContext = 16 * 1024

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func classifyPrompt(a Action) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Action: %s\n", a.Describe())
	if a.Form != nil {
		b.WriteString("Form fields:")
		for _, f := range a.Form.Fields {
			fmt.Fprintf(&b, " %s(%s)", f.Name, f.Type)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Page context:\n%s\n", truncate(a.Context, maxPromptContext))
	return b.String()
}

func verifyPrompt(e Execution) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Action: %s\n", e.Action.Describe())
	fmt.Fprintf(&b, "Prediction: resource=%q operation=%q CRUD_type=%q\n",
		e.Predicted.Resource, e.Predicted.Operation, e.Predicted.CRUDType)
	fmt.Fprintf(&b, "HTTP status: %d\n", e.StatusCode)
	if e.Before == e.After {
		fmt.Fprintf(&b, "Page text (unchanged):\n%s\n", truncate(e.After, maxPromptContext))
	} else {
		fmt.Fprintf(&b, "Page text before:\n%s\n", truncate(e.Before, maxPromptContext))
		fmt.Fprintf(&b, "Page text after:\n%s\n", truncate(e.After, maxPromptContext))
	}
	return b.String()
}

func dependencyPrompt(parent string, parentContext []string, child string, childContext []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Resource A: %s\n", parent)
	for _, c := range parentContext {
		fmt.Fprintf(&b, "%s\n", c)
	}
	fmt.Fprintf(&b, "Resource B: %s\n", child)
	for _, c := range childContext {
		fmt.Fprintf(&b, "%s\n", c)
	}
	return b.String()
}
