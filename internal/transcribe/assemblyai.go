package transcribe

import (
	"context"

	aai "github.com/AssemblyAI/assemblyai-go-sdk"
)

// AssemblyAI adapts the AssemblyAI SDK to Backend.
type AssemblyAI struct {
	client *aai.Client
}

func NewAssemblyAI(apiKey string) *AssemblyAI {
	return &AssemblyAI{client: aai.NewClient(apiKey)}
}

func (a *AssemblyAI) Submit(ctx context.Context, audioURL, language string) (Job, error) {
	params := &aai.TranscriptOptionalParams{
		LanguageCode: aai.TranscriptLanguageCode(language),
	}
	transcript, err := a.client.Transcripts.SubmitFromURL(ctx, audioURL, params)
	if err != nil {
		return Job{}, err
	}
	return Job{
		ID:       aai.ToString(transcript.ID),
		AudioURL: aai.ToString(transcript.AudioURL),
		Status:   string(transcript.Status),
		Error:    aai.ToString(transcript.Error),
	}, nil
}

func (a *AssemblyAI) Get(ctx context.Context, id string) (Job, error) {
	transcript, err := a.client.Transcripts.Get(ctx, id)
	if err != nil {
		return Job{}, err
	}
	return Job{
		ID:       aai.ToString(transcript.ID),
		AudioURL: aai.ToString(transcript.AudioURL),
		Status:   string(transcript.Status),
		Error:    aai.ToString(transcript.Error),
	}, nil
}

func (a *AssemblyAI) Sentences(ctx context.Context, id string) ([]Sentence, error) {
	resp, err := a.client.Transcripts.GetSentences(ctx, id)
	if err != nil {
		return nil, err
	}
	sentences := make([]Sentence, 0, len(resp.Sentences))
	for _, s := range resp.Sentences {
		sentences = append(sentences, Sentence{
			StartMS: aai.ToInt64(s.Start),
			Text:    aai.ToString(s.Text),
		})
	}
	return sentences, nil
}

func (a *AssemblyAI) Recent(ctx context.Context, limit int) ([]Job, error) {
	list, err := a.client.Transcripts.List(ctx, aai.ListTranscriptParams{Limit: aai.Int64(int64(limit))})
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(list.Transcripts))
	for _, item := range list.Transcripts {
		jobs = append(jobs, Job{
			ID:       aai.ToString(item.ID),
			AudioURL: aai.ToString(item.AudioURL),
			Status:   string(item.Status),
		})
	}
	return jobs, nil
}
