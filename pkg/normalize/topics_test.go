package normalize

import "testing"

func TestExtractTopicsKeywordsFirst(t *testing.T) {
	t.Parallel()

	topics := ExtractTopics("", "Machine Learning; Graph Theory", 5)
	if len(topics) != 2 {
		t.Fatalf("got %d topics, want 2", len(topics))
	}
	if topics[0].Label.Key != "machine learning" || topics[0].Weight != 1.0 {
		t.Fatalf("first topic = %+v", topics[0])
	}
	if topics[1].Label.Key != "graph theory" || topics[1].Weight != 1.0 {
		t.Fatalf("second topic = %+v", topics[1])
	}
}

func TestExtractTopicsFromAbstract(t *testing.T) {
	t.Parallel()

	abstract := "Quantum computing promises speedups. Quantum computing hardware " +
		"remains noisy, and quantum error correction is the path to reliable " +
		"quantum computing at scale."

	topics := ExtractTopics(abstract, "", 3)
	if len(topics) != 3 {
		t.Fatalf("got %d topics, want 3", len(topics))
	}
	if topics[0].Label.Key != "quantum computing" {
		t.Fatalf("top topic = %q, want quantum computing", topics[0].Label.Key)
	}
	if topics[0].Weight != 1.0 {
		t.Fatalf("top topic weight = %v, want 1.0", topics[0].Weight)
	}
	for _, topic := range topics[1:] {
		if topic.Weight <= 0 || topic.Weight > 1 {
			t.Fatalf("topic %q weight %v out of range", topic.Label.Key, topic.Weight)
		}
	}
}

func TestExtractTopicsDeterministic(t *testing.T) {
	t.Parallel()

	abstract := "alpha beta gamma delta alpha beta gamma delta"
	first := ExtractTopics(abstract, "", 4)
	for i := 0; i < 10; i++ {
		again := ExtractTopics(abstract, "", 4)
		if len(again) != len(first) {
			t.Fatalf("run %d returned %d topics, want %d", i, len(again), len(first))
		}
		for j := range first {
			if again[j].Label.Key != first[j].Label.Key {
				t.Fatalf("run %d topic %d = %q, want %q", i, j, again[j].Label.Key, first[j].Label.Key)
			}
		}
	}
}

func TestExtractTopicsEmptyInputs(t *testing.T) {
	t.Parallel()

	if topics := ExtractTopics("", "", 5); len(topics) != 0 {
		t.Fatalf("got %d topics from empty inputs, want 0", len(topics))
	}
}

func TestExtractTopicsRespectsLimit(t *testing.T) {
	t.Parallel()

	topics := ExtractTopics("", "one; two; three; four; five; six; seven", 3)
	if len(topics) != 3 {
		t.Fatalf("got %d topics, want 3", len(topics))
	}
}
