package openai

const captionSystemPrompt = `You convert images from business documents into searchable text.
Transcribe every legible word exactly as written, including headings, table
cells, labels and captions. Then describe charts, diagrams and photos in plain
sentences, stating the figures and relationships they show. Do not speculate
about content you cannot see.`

const captionUserPrompt = "Describe this image."
