package interlocutor

import "fmt"

type PronounUsage string

const (
	PronounSecondPerson PronounUsage = "second_person"
	// PronounSpeakerSecondPatientThird addresses the speaker as "you" and the patient as "he/she".
	PronounSpeakerSecondPatientThird PronounUsage = "second_person_for_speaker_third_person_for_patient"
)

type QuestionStyle string

const (
	QuestionDirect       QuestionStyle = "direct"
	QuestionAboutPatient QuestionStyle = "about_patient"
)

// AddressingRules tell the dialogue engine how to phrase replies.
type AddressingRules struct {
	PronounUsage     PronounUsage  `json:"pronoun_usage"`
	QuestionStyle    QuestionStyle `json:"question_style"`
	ReferToPatientAs string        `json:"refer_to_patient_as"`
	Guidelines       []string      `json:"guidelines"`
}

// DeriveRules is a pure function of the context's scenario, names and fallback reason.
func DeriveRules(c Context) AddressingRules {
	if c.Scenario == ScenarioResponsible {
		return AddressingRules{
			PronounUsage:     PronounSpeakerSecondPatientThird,
			QuestionStyle:    QuestionAboutPatient,
			ReferToPatientAs: c.PatientName,
			Guidelines: []string{
				fmt.Sprintf("You are talking to %s, who is responsible for the patient %s.", c.InterlocutorName, c.PatientName),
				fmt.Sprintf("Ask about %s in the third person, e.g. \"how is %s responding to the treatment?\".", c.PatientName, c.PatientName),
				"Address the speaker in the second person.",
				"Confirm which patient an order is for before adding items.",
			},
		}
	}

	refer := c.PatientName
	if refer == "" {
		refer = "the patient"
	}
	rules := AddressingRules{
		PronounUsage:     PronounSecondPerson,
		QuestionStyle:    QuestionDirect,
		ReferToPatientAs: refer,
		Guidelines: []string{
			"You are talking directly to the patient.",
			"Ask about symptoms and treatment in the second person.",
		},
	}
	if c.FallbackReason != FallbackNone {
		rules.Guidelines = append(rules.Guidelines,
			"Association data is incomplete; if the speaker mentions caring for someone else, confirm who the patient is.")
	}
	return rules
}
