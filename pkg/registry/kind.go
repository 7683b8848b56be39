package registry

// Kind is the interaction type.
type Kind int

const (
	KindPost Kind = iota
	KindAsk
	KindReact
	KindAnswer
)

// Role is the lower-case name used to qualify interaction names.
func (k Kind) Role() string {
	switch k {
	case KindPost:
		return "post"
	case KindAsk:
		return "ask"
	case KindReact:
		return "react"
	case KindAnswer:
		return "answer"
	}
	return "unknown"
}

// WireType is the knowledgeInteractionType the broker expects.
func (k Kind) WireType() string {
	switch k {
	case KindPost:
		return "PostKnowledgeInteraction"
	case KindAsk:
		return "AskKnowledgeInteraction"
	case KindReact:
		return "ReactKnowledgeInteraction"
	case KindAnswer:
		return "AnswerKnowledgeInteraction"
	}
	return ""
}

// PatternKey is the registration body key carrying the argument pattern.
func (k Kind) PatternKey() string {
	if k == KindAsk || k == KindAnswer {
		return "graphPattern"
	}
	return "argumentGraphPattern"
}

// Passive reports whether the broker calls us for this kind.
func (k Kind) Passive() bool {
	return k == KindReact || k == KindAnswer
}

func (k Kind) String() string { return k.Role() }

// ParseKind maps a role or wire type back to a Kind.
func ParseKind(s string) (Kind, bool) {
	for _, k := range []Kind{KindPost, KindAsk, KindReact, KindAnswer} {
		if s == k.Role() || s == k.WireType() {
			return k, true
		}
	}
	return 0, false
}
