package postcache

import (
	"sort"

	"rmashqip/internal/models"
)

// Merge 按 ID 合并本地与远程帖子，UpdatedAt 较新者胜出，结果按发布时间倒序
// 本地已同步但远程列表中没有的帖子被丢弃，只有从未上传成功的本地帖子保留
func Merge(local, remote []Post) []Post {
	byID := make(map[string]Post, len(local)+len(remote))
	for _, p := range remote {
		p.Synced = true
		byID[p.ID] = p
	}
	for _, p := range local {
		r, ok := byID[p.ID]
		if !ok {
			if !p.Synced {
				byID[p.ID] = p
			}
			continue
		}
		if !p.UpdatedAt.After(r.UpdatedAt) {
			continue
		}
		p.Synced = true
		byID[p.ID] = p
	}

	merged := make([]Post, 0, len(byID))
	for _, p := range byID {
		merged = append(merged, p)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Timestamp.Equal(merged[j].Timestamp) {
			return merged[i].ID > merged[j].ID
		}
		return merged[i].Timestamp.After(merged[j].Timestamp)
	})
	return merged
}

// FromModel 远程帖子转为本地缓存格式
func FromModel(p models.Post) Post {
	return Post{
		ID:       p.ID,
		AuthorID: p.AuthorID,
		Author: Author{
			Name:     models.DisplayName(p.Author.FullName, p.Author.Email),
			Username: p.Author.Username,
			Avatar:   p.Author.AvatarURL,
		},
		Content:   p.Content,
		Image:     p.ImageURL,
		Video:     p.VideoURL,
		Timestamp: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
		Likes:     p.LikesCount,
		Comments:  p.CommentsCount,
		Shares:    p.SharesCount,
		IsLiked:   p.IsLiked,
		IsSaved:   p.IsSaved,
		Synced:    true,
	}
}

func FromModels(posts []models.Post) []Post {
	out := make([]Post, 0, len(posts))
	for _, p := range posts {
		out = append(out, FromModel(p))
	}
	return out
}
