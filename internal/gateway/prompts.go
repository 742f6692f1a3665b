package gateway

const translateSystem = "You are a professional Korean to English translator."

const translatePrompt = `Translate the following Korean text into one natural English sentence.
Keep the speaker's tone and feeling.
Respond only with the translated sentence, without explanation or quotation.

Korean: %s`

const captionPrompt = `Look at this image and write ONE English sentence about its atmosphere and mood.
Focus on how the scene feels (light, weather, tempo, emotion) rather than listing objects.
Respond only with that sentence.`
