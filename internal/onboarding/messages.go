package onboarding

const (
	msgOpeningNamed  = "Hey %s! I'm Linkup. I help people make real plans with friends and new people, all over text. Want to hear how it works?"
	msgOpening       = "Hey! I'm Linkup. I help people make real plans with friends and new people, all over text. Want to hear how it works?"
	msgExplanation   = "Here's the idea: you tell me what you're up for, I line up the people and the plan. I'll send a few quick texts about how it works. Sound good?"
	msgLater         = "No problem. Text me whenever you're ready."
	msgInterviewOpen = "First up: tell me a bit about yourself. What do you do when you're not working?"

	msgBurst1 = "1/4 When you want to do something, just text me. Dinner, a hike, a show, anything."
	msgBurst2 = "2/4 I'll match you with people nearby who are into the same thing, or help you rally your own friends."
	msgBurst3 = "3/4 Everyone confirms before anything is locked in, and you can bow out anytime."
	msgBurst4 = "4/4 To get started I need to learn a little about you. Ready? Reply anything to begin."
)
