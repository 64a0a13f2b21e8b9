package answer

const instructions = `Remember to:
1. Maintain conversation continuity
2. Reference previous context when relevant
3. Be natural and conversational
4. Only use knowledge context if relevant to the current query
5. Avoid unnecessary repetition
6. If the user asks for a specific document, provide a summary or key points from that document
7. Do not mention the context or the documents; answer as if you already know the material`
