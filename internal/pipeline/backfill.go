package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/daeunpk/wink/internal/models"
)

var errUnchanged = errors.New("unchanged")

// BackfillEmbeddings embeds the keyword set of every turn whose keyword
// embedding is missing or empty and stores the result. Turns without
// keywords get an empty entry. Running it twice does no extra work. It
// returns the number of embeddings computed.
func (o *Orchestrator) BackfillEmbeddings(ctx context.Context) (int, error) {
	if o.embedder == nil {
		return 0, errors.New("no embedder configured")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	added := 0
	_, err := o.store.Update(o.cfg.SessionName, func(sess *models.Session) error {
		turns := sess.TurnCount()
		changed := false
		if len(sess.KeywordEmbeddings) > turns {
			sess.KeywordEmbeddings = sess.KeywordEmbeddings[:turns]
			changed = true
		}
		for i := range turns {
			if i < len(sess.KeywordEmbeddings) && len(sess.KeywordEmbeddings[i]) > 0 {
				continue
			}
			kw := sess.EnglishKeywords[i]
			if len(kw) == 0 {
				if i >= len(sess.KeywordEmbeddings) {
					sess.KeywordEmbeddings = append(sess.KeywordEmbeddings, []float32{})
					changed = true
				}
				continue
			}
			vec, err := o.embedder.Embed(ctx, strings.Join(kw, " "))
			if err != nil {
				return fmt.Errorf("turn %d: %w", i+1, err)
			}
			if i < len(sess.KeywordEmbeddings) {
				sess.KeywordEmbeddings[i] = vec
			} else {
				sess.KeywordEmbeddings = append(sess.KeywordEmbeddings, vec)
			}
			added++
			changed = true
		}
		if !changed {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return 0, nil
	}
	if err != nil {
		// Embeddings computed before the failure were not written.
		return 0, err
	}
	o.logger.Info("Backfilled keyword embeddings", "session", o.cfg.SessionName, "added", added)
	return added, nil
}
