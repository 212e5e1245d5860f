package postcache

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"rmashqip/internal/media/sniffer"
)

var (
	ErrMediaTooLarge    = errors.New("media file too large")
	ErrMediaTypeInvalid = errors.New("media must be an image or a video")
)

type Media struct {
	Kind    sniffer.Kind
	MIME    string
	DataURL string
	Bytes   []byte
}

// MediaEncode 读取上传文件并编码为 data URL，类型以文件头为准
func MediaEncode(r io.Reader, declared string, maxBytes int64) (Media, error) {
	limited := io.LimitReader(r, maxBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return Media{}, fmt.Errorf("read media: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return Media{}, ErrMediaTooLarge
	}

	res, _, err := sniffer.Detect(bytes.NewReader(data))
	if err != nil {
		return Media{}, ErrMediaTypeInvalid
	}
	if !sniffer.MatchesDeclared(res, declared) {
		return Media{}, ErrMediaTypeInvalid
	}

	return Media{
		Kind:    res.Kind,
		MIME:    res.MIME,
		DataURL: "data:" + res.MIME + ";base64," + base64.StdEncoding.EncodeToString(data),
		Bytes:   data,
	}, nil
}
