package controller

import "testing"

func TestTrailingUID(t *testing.T) {
	uid := "0123456789abcdef0123456789abcdef"
	topic := "Chains/c1/SubSystems/m1/Controls/" + uid
	if got := trailingUID(topic); got != uid {
		t.Errorf("trailingUID = %q, want %q", got, uid)
	}
	if got := trailingUID("short"); got != "" {
		t.Errorf("trailingUID(short) = %q, want empty", got)
	}
}

func TestInterpretationKey(t *testing.T) {
	topic := "Chains/c1/SubSystems/m1/Data/Raw/Interpretation"
	if got := interpretationKey(topic); got != "Raw" {
		t.Errorf("interpretationKey = %q, want %q", got, "Raw")
	}
	if got := interpretationKey("Chains/c1/Setup"); got != "" {
		t.Errorf("interpretationKey(non-matching) = %q, want empty", got)
	}
}

func TestMatchesControlsTopic(t *testing.T) {
	uid := "0123456789abcdef0123456789abcdef"
	good := "Chains/c1/SubSystems/m1/Controls/" + uid
	if !matchesControlsTopic(good, "c1", "m1") {
		t.Errorf("expected %q to match", good)
	}
	if matchesControlsTopic(good, "c2", "m1") {
		t.Error("expected topic for a different chain not to match")
	}
	if matchesControlsTopic("Chains/c1/SubSystems/m1/Data/Raw/Interpretation", "c1", "m1") {
		t.Error("expected a Data topic not to match Controls")
	}
}

func TestMatchesInterpretationTopic(t *testing.T) {
	good := "Chains/c1/SubSystems/m1/Data/Raw/Interpretation"
	if !matchesInterpretationTopic(good, "c1", "m1") {
		t.Errorf("expected %q to match", good)
	}
	if matchesInterpretationTopic("Chains/c1/SubSystems/m1/Data/Raw/Records", "c1", "m1") {
		t.Error("expected a Records topic not to match Interpretation")
	}
}

func TestTopicBuilders(t *testing.T) {
	if got, want := topicSetup("c1"), "Chains/c1/Setup"; got != want {
		t.Errorf("topicSetup = %q, want %q", got, want)
	}
	if got, want := topicSetupSubSystems("c1"), "Chains/c1/Setup/SubSystems"; got != want {
		t.Errorf("topicSetupSubSystems = %q, want %q", got, want)
	}
	if got, want := topicIncoming("c1", "m1"), "Chains/c1/SubSystems/m1/Incoming"; got != want {
		t.Errorf("topicIncoming = %q, want %q", got, want)
	}
	if got, want := topicOutgoing("c1", "m1"), "Chains/c1/SubSystems/m1/Outgoing"; got != want {
		t.Errorf("topicOutgoing = %q, want %q", got, want)
	}
	if got, want := topicDefinition("m1"), "AvailableSubSystems/m1/Definition"; got != want {
		t.Errorf("topicDefinition = %q, want %q", got, want)
	}
	if got, want := dataStreamTopic("c1", "m1", "Raw"), "Chains/c1/SubSystems/m1/Data/Raw/Records"; got != want {
		t.Errorf("dataStreamTopic = %q, want %q", got, want)
	}
}

func TestTickGating(t *testing.T) {
	c := &Controller{}
	definitionTicks := 0
	for i := 0; i < definitionRepublishEveryNTicks*3; i++ {
		c.tickCount++
		if c.tickCount%definitionRepublishEveryNTicks == 0 {
			definitionTicks++
		}
	}
	if definitionTicks != 3 {
		t.Errorf("expected 3 definition republishes in %d ticks, got %d", definitionRepublishEveryNTicks*3, definitionTicks)
	}
}
