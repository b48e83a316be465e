// internal/common/aws/textract.go
package aws

import (
	"context"
	"fmt"
	"strings"

	"admissions-workers/internal/common/errors"
	"admissions-workers/internal/models"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
)

type textractAPI interface {
	AnalyzeDocument(ctx context.Context, params *textract.AnalyzeDocumentInput, optFns ...func(*textract.Options)) (*textract.AnalyzeDocumentOutput, error)
}

// DocumentReader loads document bytes from the object store.
type DocumentReader interface {
	Get(ctx context.Context, reference string) ([]byte, error)
}

// TextractExtractor turns a stored document into text and form fields. With a
// reader the bytes are sent inline, otherwise Textract reads the S3 object.
type TextractExtractor struct {
	api    textractAPI
	reader DocumentReader
}

func NewTextractExtractor(cfg awssdk.Config, reader DocumentReader) *TextractExtractor {
	return &TextractExtractor{api: textract.NewFromConfig(cfg), reader: reader}
}

var analyzeFeatures = []types.FeatureType{
	types.FeatureTypeForms,
	types.FeatureTypeTables,
	types.FeatureTypeLayout,
	types.FeatureTypeSignatures,
}

// Extract analyzes the S3 object at reference. Every failure is an *errors.ExtractionError.
func (t *TextractExtractor) Extract(ctx context.Context, reference string) (*models.ExtractedDocument, error) {
	bucket, key, err := ParseReference(reference)
	if err != nil {
		return nil, errors.NewExtractionError("", err)
	}

	doc := &types.Document{
		S3Object: &types.S3Object{Bucket: awssdk.String(bucket), Name: awssdk.String(key)},
	}
	if t.reader != nil {
		body, err := t.reader.Get(ctx, reference)
		if err != nil {
			return nil, errors.NewExtractionError("", err)
		}
		doc = &types.Document{Bytes: body}
	}

	out, err := t.api.AnalyzeDocument(ctx, &textract.AnalyzeDocumentInput{
		Document:     doc,
		FeatureTypes: analyzeFeatures,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return nil, errors.NewExtractionError("", err)
	}

	text, fields := parseBlocks(out.Blocks)
	return &models.ExtractedDocument{
		Status: models.ExtractionSucceeded,
		Text:   text,
		Fields: fields,
	}, nil
}

// parseBlocks joins LINE blocks into text and resolves KEY_VALUE_SET pairs.
func parseBlocks(blocks []types.Block) (string, map[string]string) {
	byID := make(map[string]types.Block, len(blocks))
	for _, b := range blocks {
		if b.Id != nil {
			byID[*b.Id] = b
		}
	}

	var lines []string
	fields := make(map[string]string)
	for _, b := range blocks {
		switch b.BlockType {
		case types.BlockTypeLine:
			if b.Text != nil {
				lines = append(lines, *b.Text)
			}
		case types.BlockTypeKeyValueSet:
			if !hasEntity(b, types.EntityTypeKey) {
				continue
			}
			k := childText(b, byID)
			if k == "" {
				continue
			}
			var v string
			for _, rel := range b.Relationships {
				if rel.Type != types.RelationshipTypeValue {
					continue
				}
				for _, id := range rel.Ids {
					if vb, ok := byID[id]; ok {
						v = childText(vb, byID)
					}
				}
			}
			fields[k] = v
		}
	}
	return strings.Join(lines, "\n"), fields
}

func hasEntity(b types.Block, want types.EntityType) bool {
	for _, e := range b.EntityTypes {
		if e == want {
			return true
		}
	}
	return false
}

func childText(b types.Block, byID map[string]types.Block) string {
	var words []string
	for _, rel := range b.Relationships {
		if rel.Type != types.RelationshipTypeChild {
			continue
		}
		for _, id := range rel.Ids {
			child, ok := byID[id]
			if !ok {
				continue
			}
			switch child.BlockType {
			case types.BlockTypeWord:
				if child.Text != nil {
					words = append(words, *child.Text)
				}
			case types.BlockTypeSelectionElement:
				words = append(words, string(child.SelectionStatus))
			}
		}
	}
	return strings.TrimSpace(strings.Join(words, " "))
}
