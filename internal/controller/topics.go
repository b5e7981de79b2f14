package controller

import "fmt"

const topicSelectedChain = "SelectedChain"

func topicSetup(chainUID string) string {
	return fmt.Sprintf("Chains/%s/Setup", chainUID)
}

func topicSetupSubSystems(chainUID string) string {
	return fmt.Sprintf("Chains/%s/Setup/SubSystems", chainUID)
}

func topicControlsWildcard(chainUID, moduleUID string) string {
	return fmt.Sprintf("Chains/%s/SubSystems/%s/Controls/#", chainUID, moduleUID)
}

func topicDataInterpretationWildcard(chainUID, moduleUID string) string {
	return fmt.Sprintf("Chains/%s/SubSystems/%s/Data/+/Interpretation", chainUID, moduleUID)
}

func topicIncoming(chainUID, moduleUID string) string {
	return fmt.Sprintf("Chains/%s/SubSystems/%s/Incoming", chainUID, moduleUID)
}

func topicOutgoing(chainUID, moduleUID string) string {
	return fmt.Sprintf("Chains/%s/SubSystems/%s/Outgoing", chainUID, moduleUID)
}

func topicDefinition(moduleUID string) string {
	return fmt.Sprintf("AvailableSubSystems/%s/Definition", moduleUID)
}

func topicStatus(moduleUID string) string {
	return fmt.Sprintf("AvailableSubSystems/%s/Status", moduleUID)
}

func topicRates(chainUID, moduleUID string) string {
	return fmt.Sprintf("Chains/%s/SubSystems/%s/Rates", chainUID, moduleUID)
}

func topicControl(chainUID, moduleUID, uid string) string {
	return fmt.Sprintf("Chains/%s/SubSystems/%s/Controls/%s", chainUID, moduleUID, uid)
}

func topicDataInterpretation(chainUID, moduleUID, key string) string {
	return fmt.Sprintf("Chains/%s/SubSystems/%s/Data/%s/Interpretation", chainUID, moduleUID, key)
}

// dataStreamTopic builds the publish topic a downstream consumer expects
// for one ingress/egress stream key (spec §4.6 "Incoming"/"Outgoing"
// handlers): Chains/<chain>/SubSystems/<source>/Data/<key>/Records.
func dataStreamTopic(chainUID, source, key string) string {
	return fmt.Sprintf("Chains/%s/SubSystems/%s/Data/%s/Records", chainUID, source, key)
}

// trailingUID extracts the final 32 hex characters from a Controls/<uid>
// topic, matching a configured control by its hyphenless uid (spec
// §4.6: "32-char uid is trailing segment").
func trailingUID(topic string) string {
	if len(topic) < 32 {
		return ""
	}
	return topic[len(topic)-32:]
}

// interpretationKey extracts <key> from a
// .../Data/<key>/Interpretation topic.
func interpretationKey(topic string) string {
	const suffix = "/Interpretation"
	if len(topic) <= len(suffix) || topic[len(topic)-len(suffix):] != suffix {
		return ""
	}
	trimmed := topic[:len(topic)-len(suffix)]
	idx := lastIndexByte(trimmed, '/')
	if idx < 0 {
		return trimmed
	}
	return trimmed[idx+1:]
}

func lastIndexByte(s string, b byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == b {
			return i
		}
	}
	return -1
}
