package fraud

import "fmt"

const promptFormat = `You are a system that detects CEO fraud (business email compromise) for companies.
Decide whether the email below impersonates an executive in order to get money transferred.

Work through these questions in order:
1. Financial request: is a transfer or payment requested, is the amount unusual, is the bank account a company account, is there a valid contract or invoice reference?
2. Tone and style: is the tone pressing or coercive, does it ask for secrecy or to avoid other channels, does it read like a personal chat rather than business mail?
3. Context and process: does the request follow normal company process, is the reason explained, is there verifiable information such as an order number?
4. Technical: is there a company signature, does the format follow business conventions?

Email:
%s

Respond ONLY with a JSON object, no markdown and no other text:
{
  "detected": true or false,
  "confidence": 0-100,
  "reason": "two or three sentences explaining the decision",
  "indicators": ["indicator 1", "indicator 2"],
  "risk_score": 0-100
}

Only set "detected" to true when there are several clear indicators. Prefer precision over recall.
Judge behaviour and context, not keywords alone.`

func buildPrompt(text string) string {
	return fmt.Sprintf(promptFormat, text)
}
