package relay

import (
	"fmt"
	"strings"
)

// ChatSystemPrompt is the default system prompt for the chat relay.
const ChatSystemPrompt = `You are the investment assistant of a client portal. Answer questions about
markets, products and the client's portfolio concisely. Do not give personalised
financial advice. Reply in the language of the question.`

const newsSystemPrompt = `You are a financial news analyst. Summarise the most important market news of
the last 24 hours for private investors. Be factual and concise.`

const defaultNewsQuery = "What are today's most important stock market and macroeconomic news?"

const stockNewsSystemPrompt = `You are a financial news analyst. Reply with a JSON array only.`

func stockNewsPrompt(names []string) string {
	return fmt.Sprintf(`Find the latest news for each of these stocks: %s.
Return a JSON array where each element is {"stock_name": string, "bullets": string[]}
with 2 to 3 short bullet points per stock. Use the stock names exactly as given.`,
		strings.Join(names, ", "))
}
