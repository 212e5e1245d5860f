package sniffer

import (
	"bytes"
	"errors"
	"io"
	"strings"
)

type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

var ErrUnknownType = errors.New("unknown media type")

// ISO-BMFF 容器的主品牌，未列出的一律拒绝
var (
	heifBrands = map[string]bool{"heic": true, "heix": true, "mif1": true, "msf1": true}
	mp4Brands  = map[string]bool{"isom": true, "iso2": true, "mp41": true, "mp42": true, "avc1": true, "M4V ": true}
)

type Result struct {
	Kind Kind
	MIME string
}

func Detect(r io.Reader) (Result, []byte, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Result{}, nil, err
	}
	head = head[:n]

	result, err := DetectHead(head)
	return result, head, err
}

// DetectHead 只认魔数，不信任客户端声明的类型
func DetectHead(head []byte) (Result, error) {
	if len(head) == 0 {
		return Result{}, ErrUnknownType
	}

	switch {
	case isJPEG(head):
		return Result{Kind: KindImage, MIME: "image/jpeg"}, nil
	case isPNG(head):
		return Result{Kind: KindImage, MIME: "image/png"}, nil
	case isGIF(head):
		return Result{Kind: KindImage, MIME: "image/gif"}, nil
	case isRIFF(head, "WEBP"):
		return Result{Kind: KindImage, MIME: "image/webp"}, nil
	case isWebM(head):
		return Result{Kind: KindVideo, MIME: "video/webm"}, nil
	}

	if brand, ok := ftypBrand(head); ok {
		switch {
		case brand == "avif" || brand == "avis":
			return Result{Kind: KindImage, MIME: "image/avif"}, nil
		case heifBrands[brand]:
			return Result{Kind: KindImage, MIME: "image/heic"}, nil
		case brand == "qt  ":
			return Result{Kind: KindVideo, MIME: "video/quicktime"}, nil
		case mp4Brands[brand] || strings.HasPrefix(brand, "3gp"):
			return Result{Kind: KindVideo, MIME: "video/mp4"}, nil
		}
	}

	return Result{}, ErrUnknownType
}

func isJPEG(head []byte) bool {
	return len(head) > 3 &&
		head[0] == 0xff &&
		head[1] == 0xd8 &&
		head[2] == 0xff
}

func isPNG(head []byte) bool {
	pngMagic := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	return len(head) >= len(pngMagic) && bytes.Equal(head[:len(pngMagic)], pngMagic)
}

func isGIF(head []byte) bool {
	return len(head) >= 6 && (bytes.Equal(head[:6], []byte("GIF87a")) || bytes.Equal(head[:6], []byte("GIF89a")))
}

func isRIFF(head []byte, format string) bool {
	return len(head) >= 12 &&
		bytes.Equal(head[:4], []byte("RIFF")) &&
		bytes.Equal(head[8:12], []byte(format))
}

func isWebM(head []byte) bool {
	return len(head) >= 4 && bytes.Equal(head[:4], []byte{0x1a, 0x45, 0xdf, 0xa3})
}

func ftypBrand(head []byte) (string, bool) {
	if len(head) < 12 || string(head[4:8]) != "ftyp" {
		return "", false
	}
	return string(head[8:12]), true
}

// MatchesDeclared 客户端声明的类型与探测结果的大类是否一致
func MatchesDeclared(result Result, declared string) bool {
	if declared == "" {
		return true
	}
	if idx := strings.Index(declared, ";"); idx >= 0 {
		declared = declared[:idx]
	}
	return strings.HasPrefix(strings.TrimSpace(declared), string(result.Kind)+"/")
}
