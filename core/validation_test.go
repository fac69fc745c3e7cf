package core

import (
	"errors"
	"testing"
)

func TestValidateIntentNode(t *testing.T) {
	tests := []struct {
		name    string
		node    *IntentNode
		wantErr error
	}{
		{
			name: "valid domain",
			node: &IntentNode{Code: "finance", Name: "财务", Level: LevelDomain},
		},
		{
			name: "valid topic",
			node: &IntentNode{
				Code:       "finance.invoice.info",
				Name:       "发票信息",
				Level:      LevelTopic,
				ParentCode: "finance.invoice",
				Kind:       KindKB,
				Collection: "kb_invoice",
			},
		},
		{
			name: "KB topic without collection passes node validation",
			node: &IntentNode{Code: "t", Name: "t", Level: LevelTopic, ParentCode: "c", Kind: KindKB},
		},
		{
			name:    "nil node",
			node:    nil,
			wantErr: ErrInvalidIntentNode,
		},
		{
			name:    "empty code",
			node:    &IntentNode{Name: "x", Level: LevelDomain},
			wantErr: ErrEmptyCode,
		},
		{
			name:    "empty name",
			node:    &IntentNode{Code: "x", Level: LevelDomain},
			wantErr: ErrEmptyName,
		},
		{
			name:    "bad level",
			node:    &IntentNode{Code: "x", Name: "x", Level: 7},
			wantErr: ErrInvalidLevel,
		},
		{
			name:    "bad kind",
			node:    &IntentNode{Code: "x", Name: "x", Level: LevelDomain, Kind: "WEB"},
			wantErr: ErrInvalidKind,
		},
		{
			name:    "domain with parent",
			node:    &IntentNode{Code: "x", Name: "x", Level: LevelDomain, ParentCode: "y"},
			wantErr: ErrParentMismatch,
		},
		{
			name:    "category without parent",
			node:    &IntentNode{Code: "x", Name: "x", Level: LevelCategory},
			wantErr: ErrParentMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIntentNode(tt.node)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateIntentNode() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateIntentNode() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEffectiveKind(t *testing.T) {
	n := &IntentNode{}
	if n.EffectiveKind() != KindKB {
		t.Errorf("empty kind should default to KB")
	}
	n.Kind = KindMCP
	if n.EffectiveKind() != KindMCP {
		t.Errorf("EffectiveKind() = %v, want MCP", n.EffectiveKind())
	}
}
