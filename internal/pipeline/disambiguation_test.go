package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quality-agent/backend/internal/session"
)

func TestEnforceVerdictInvariant(t *testing.T) {
	tests := []struct {
		name    string
		verdict DisambiguationVerdict
		want    bool
	}{
		{
			name: "valid verdict kept",
			verdict: DisambiguationVerdict{
				NeedsConfirmation:    true,
				ConfirmationQuestion: "어느 기준인가요?",
				CandidateIntents:     factoryCandidates,
			},
			want: true,
		},
		{
			name: "missing question downgraded",
			verdict: DisambiguationVerdict{
				NeedsConfirmation:    true,
				ConfirmationQuestion: "   ",
				CandidateIntents:     factoryCandidates,
			},
			want: false,
		},
		{
			name: "single candidate downgraded",
			verdict: DisambiguationVerdict{
				NeedsConfirmation:    true,
				ConfirmationQuestion: "어느 기준인가요?",
				CandidateIntents:     factoryCandidates[:1],
			},
			want: false,
		},
		{
			name: "no candidates downgraded",
			verdict: DisambiguationVerdict{
				NeedsConfirmation:    true,
				ConfirmationQuestion: "어느 기준인가요?",
			},
			want: false,
		},
		{
			name:    "negative verdict untouched",
			verdict: DisambiguationVerdict{NeedsConfirmation: false},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.verdict
			enforceVerdictInvariant(&v)
			assert.Equal(t, tt.want, v.NeedsConfirmation)
		})
	}
}

func confirmationOffer(candidates []string) session.Message {
	return session.Message{
		Role:    session.RoleAssistant,
		Content: "어느 기준인지 선택해주세요.",
		Metadata: map[string]interface{}{
			"candidateIntents": candidates,
		},
	}
}

func TestPriorSelection(t *testing.T) {
	t.Run("selection after offer resolves", func(t *testing.T) {
		history := []session.Message{
			{Role: session.RoleUser, Content: "공장별 불량률 보여줘"},
			confirmationOffer(factoryCandidates),
			{Role: session.RoleUser, Content: "발생공장 기준으로"},
		}

		got, ok := priorSelection(history)
		assert.True(t, ok)
		assert.Equal(t, factoryCandidates[0], got)
	})

	t.Run("no offer in history", func(t *testing.T) {
		history := []session.Message{
			{Role: session.RoleUser, Content: "공장별 불량률 보여줘"},
			{Role: session.RoleAssistant, Content: "분석 결과입니다."},
		}

		_, ok := priorSelection(history)
		assert.False(t, ok)
	})

	t.Run("reply matching no candidate", func(t *testing.T) {
		history := []session.Message{
			confirmationOffer(factoryCandidates),
			{Role: session.RoleUser, Content: "그냥 알아서 해줘"},
		}

		_, ok := priorSelection(history)
		assert.False(t, ok)
	})

	t.Run("selection before offer does not count", func(t *testing.T) {
		history := []session.Message{
			{Role: session.RoleUser, Content: "발생공장 데이터 있어?"},
			confirmationOffer(factoryCandidates),
		}

		_, ok := priorSelection(history)
		assert.False(t, ok)
	})

	t.Run("interface-typed candidates from decoded metadata", func(t *testing.T) {
		history := []session.Message{
			{
				Role: session.RoleAssistant,
				Metadata: map[string]interface{}{
					"candidateIntents": []interface{}{
						"발생공장: 결함이 검출된 공장",
						"책임공장: 결함 책임이 판정된 공장",
					},
				},
			},
			{Role: session.RoleUser, Content: "책임공장으로 봐줘"},
		}

		got, ok := priorSelection(history)
		assert.True(t, ok)
		assert.Equal(t, "책임공장: 결함 책임이 판정된 공장", got)
	})

	t.Run("most recent offer wins", func(t *testing.T) {
		history := []session.Message{
			confirmationOffer([]string{"수출용: 수출 판매분", "내수용: 국내 판매분"}),
			{Role: session.RoleUser, Content: "수출용"},
			{Role: session.RoleAssistant, Content: "분석 결과입니다."},
			confirmationOffer(factoryCandidates),
			{Role: session.RoleUser, Content: "발생공장"},
		}

		got, ok := priorSelection(history)
		assert.True(t, ok)
		assert.Equal(t, factoryCandidates[0], got)
	})
}

func TestCandidateLabel(t *testing.T) {
	assert.Equal(t, "발생공장", candidateLabel("발생공장: 결함이 검출된 공장"))
	assert.Equal(t, "책임공장", candidateLabel(" 책임공장 : 정의"))
	assert.Equal(t, "라벨만", candidateLabel("라벨만"))
	assert.Equal(t, "", candidateLabel(": 정의만"))
}
