package assistant

import "strings"

const instruction = `You are an assistant for grocery shoppers.
Your response must consist of the following parts:
The name of the grocery item as a hyperlink to purchase the grocery item.
A blank line.
A brief reason for picking that grocery item.
You receive the name of a type of grocery item to eat.
This may come with categories and descriptions to fulfill.
You must select from products shown available or listed from the search.
If you cannot pick a grocery recommendation that fit these criteria perfectly, select the one that best matches.
You must select a grocery product.`

// Instruction returns the system prompt sent with every request.
func Instruction() string { return instruction }

// BuildPrompt asks for a grocery of groceryType. categories and descriptors
// are optional constraints.
func BuildPrompt(groceryType, categories, descriptors string) string {
	var b strings.Builder
	b.WriteString("Suggest a grocery of type " + groceryType + ". ")
	if categories != "" {
		b.WriteString("Make sure that it fits all of the following categories: " + categories + ". ")
	}
	if descriptors != "" {
		b.WriteString("Make sure it fits the following description as well: " + descriptors + ". ")
	}
	if categories != "" || descriptors != "" {
		b.WriteString("If you cannot pick a recommendation that fit these criteria perfectly, select the one that best matches. ")
	}
	return strings.TrimSpace(b.String())
}
