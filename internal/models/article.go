package models

import (
	"strings"
)

// Default values applied when an article field is missing at the source or in
// the vector index metadata.
const (
	DefaultCategory = "General"
	DefaultReadTime = "5 min read"
)

// Metadata keys stored alongside each vector. The article body is never stored.
const (
	MetaTitle       = "title"
	MetaSlug        = "slug"
	MetaSummary     = "summary"
	MetaCategory    = "category"
	MetaTags        = "tags"
	MetaReadTime    = "readTime"
	MetaPublishedAt = "publishedAt"
	MetaImageURL    = "imageUrl"
	MetaImageAlt    = "imageAlt"
)

// tagSeparator joins tags into the single metadata string and splits them back out.
const tagSeparator = ", "

// Article is a knowledge-base article as yielded by the content source.
type Article struct {
	ID          string        `json:"id" yaml:"id"`
	Title       string        `json:"title" yaml:"title"`
	Slug        string        `json:"slug" yaml:"slug"`
	Body        string        `json:"body" yaml:"body"`
	Summary     string        `json:"summary" yaml:"summary"`
	Category    string        `json:"category" yaml:"category"`
	Tags        []string      `json:"tags" yaml:"tags"`
	Image       *ArticleImage `json:"image,omitempty" yaml:"image,omitempty"`
	ReadTime    string        `json:"readTime" yaml:"readTime"`
	PublishedAt string        `json:"publishedAt" yaml:"publishedAt"`
}

// ArticleImage is the optional lead image of an article.
type ArticleImage struct {
	URL string `json:"url" yaml:"url"`
	Alt string `json:"alt" yaml:"alt"`
}

// Metadata flattens the article into the vector index projection (everything but the body).
func (a *Article) Metadata() map[string]any {
	imageURL, imageAlt := "", ""
	if a.Image != nil {
		imageURL = a.Image.URL
		imageAlt = a.Image.Alt
	}

	return map[string]any{
		MetaTitle:       a.Title,
		MetaSlug:        a.Slug,
		MetaSummary:     a.Summary,
		MetaCategory:    a.Category,
		MetaTags:        strings.Join(a.Tags, tagSeparator),
		MetaReadTime:    a.ReadTime,
		MetaPublishedAt: a.PublishedAt,
		MetaImageURL:    imageURL,
		MetaImageAlt:    imageAlt,
	}
}

// ArticleFromMetadata rebuilds a lightweight article from index metadata.
// Body is always empty. Missing or mistyped fields fall back to defaults so a
// partially indexed record never fails the caller.
func ArticleFromMetadata(id string, metadata map[string]any) Article {
	article := Article{
		ID:          id,
		Title:       metaString(metadata, MetaTitle, ""),
		Slug:        metaString(metadata, MetaSlug, ""),
		Body:        "",
		Summary:     metaString(metadata, MetaSummary, ""),
		Category:    metaString(metadata, MetaCategory, DefaultCategory),
		Tags:        SplitTags(metaString(metadata, MetaTags, ""), tagSeparator),
		ReadTime:    metaString(metadata, MetaReadTime, DefaultReadTime),
		PublishedAt: metaString(metadata, MetaPublishedAt, ""),
	}

	if imageURL := metaString(metadata, MetaImageURL, ""); imageURL != "" {
		article.Image = &ArticleImage{
			URL: imageURL,
			Alt: metaString(metadata, MetaImageAlt, ""),
		}
	}

	return article
}

// SplitTags splits a joined tag string, trimming whitespace and dropping empties.
// The result is never nil.
func SplitTags(joined string, sep string) []string {
	tags := []string{}
	if joined == "" {
		return tags
	}
	for _, tag := range strings.Split(joined, sep) {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// metaString reads a string value, returning fallback when absent, empty or not a string.
func metaString(metadata map[string]any, key string, fallback string) string {
	if metadata == nil {
		return fallback
	}
	value, ok := metadata[key].(string)
	if !ok || value == "" {
		return fallback
	}
	return value
}
