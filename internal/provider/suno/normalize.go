package suno

import "github.com/avelar/songforge/internal/domain"

// firstNonEmpty returns the first non-empty string.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// NormalizeTrack maps one raw provider track to the internal track shape.
// Pure, no I/O, idempotent on its input. Resource locators prefer the primary
// field and fall back to the source_ variant; absent fields become zero values
// rather than errors.
func NormalizeTrack(raw RawTrack) domain.NormalizedTrack {
	return domain.NormalizedTrack{
		ID:             raw.ID,
		AudioURL:       firstNonEmpty(raw.AudioURL, raw.SourceAudioURL),
		StreamAudioURL: firstNonEmpty(raw.StreamAudioURL, raw.SourceStreamAudioURL),
		ImageURL:       firstNonEmpty(raw.ImageURL, raw.SourceImageURL),
		Duration:       raw.Duration,
		Title:          raw.Title,
		Tags:           raw.Tags,
		ModelName:      raw.ModelName,
		Prompt:         raw.Prompt,
		CreatedAt:      raw.CreatedAt,
	}
}

// NormalizeTracks maps a raw track slice, preserving order. A nil input yields
// an empty (non-nil) list so the stored column is always valid JSON.
func NormalizeTracks(raw []RawTrack) domain.TrackList {
	tracks := make(domain.TrackList, 0, len(raw))
	for _, r := range raw {
		tracks = append(tracks, NormalizeTrack(r))
	}
	return tracks
}

// MapProviderStatus converts a record-info status string to the internal job
// status. Unknown values map to pending: the job is still in flight as far as
// this service can tell.
func MapProviderStatus(status string) domain.JobStatus {
	switch status {
	case StatusFirst:
		return domain.JobStatusFirstSuccess
	case StatusComplete:
		return domain.JobStatusCompleted
	case StatusError:
		return domain.JobStatusFailed
	default:
		// pending and text both mean "no audio yet".
		return domain.JobStatusPending
	}
}
