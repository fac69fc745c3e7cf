package core

import "fmt"

// ValidateIntentNode validates a single IntentNode in isolation.
//
// Validation rules:
//   - Code and Name must not be empty
//   - Level must be DOMAIN, CATEGORY or TOPIC
//   - Domains have no parent; every other level has one
//   - Kind must be KB, SYSTEM or MCP (empty defaults to KB)
//
// NOT validated here (needs the whole tree):
//   - parent existence and parent level
//   - Collection on KB topics (reported per channel invocation)
func ValidateIntentNode(node *IntentNode) error {
	if node == nil {
		return fmt.Errorf("%w: node is nil", ErrInvalidIntentNode)
	}
	if node.Code == "" {
		return fmt.Errorf("%w: %w", ErrInvalidIntentNode, ErrEmptyCode)
	}
	if node.Name == "" {
		return fmt.Errorf("%w: %s: %w", ErrInvalidIntentNode, node.Code, ErrEmptyName)
	}
	if err := ValidateIntentLevel(node.Level); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidIntentNode, node.Code, err)
	}
	if err := ValidateIntentKind(node.Kind); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidIntentNode, node.Code, err)
	}
	if node.Level == LevelDomain && node.ParentCode != "" {
		return fmt.Errorf("%w: %s: domain has parent %q", ErrParentMismatch, node.Code, node.ParentCode)
	}
	if node.Level != LevelDomain && node.ParentCode == "" {
		return fmt.Errorf("%w: %s: %s without parent", ErrParentMismatch, node.Code, node.Level)
	}
	return nil
}

// ValidateIntentLevel validates that a level is one of the three known levels.
func ValidateIntentLevel(level IntentLevel) error {
	if level < LevelDomain || level > LevelTopic {
		return fmt.Errorf("%w: value %d", ErrInvalidLevel, level)
	}
	return nil
}

// ValidateIntentKind validates a node kind. The empty kind is accepted and treated as KB.
func ValidateIntentKind(kind IntentKind) error {
	switch kind {
	case "", KindKB, KindSystem, KindMCP:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
}

// EffectiveKind returns the node kind, defaulting to KB.
func (n *IntentNode) EffectiveKind() IntentKind {
	if n.Kind == "" {
		return KindKB
	}
	return n.Kind
}
