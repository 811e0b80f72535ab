package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"paywall/services/paywalld/index"
)

type receiptSource interface {
	PurchasesSince(ctx context.Context, since time.Time, fn func(index.Purchase) error) error
}

type receiptRow struct {
	Article       string `parquet:"name=article, type=BYTE_ARRAY, convertedtype=UTF8"`
	Buyer         string `parquet:"name=buyer, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price         int64  `parquet:"name=price, type=INT64, convertedtype=UINT_64"`
	ProtocolFee   int64  `parquet:"name=protocol_fee, type=INT64, convertedtype=UINT_64"`
	ReferrerFee   int64  `parquet:"name=referrer_fee, type=INT64, convertedtype=UINT_64"`
	CreatorAmount int64  `parquet:"name=creator_amount, type=INT64, convertedtype=UINT_64"`
	Referrer      string `parquet:"name=referrer, type=BYTE_ARRAY, convertedtype=UTF8"`
	PurchasedAt   string `parquet:"name=purchased_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

var csvHeader = []string{
	"article", "buyer", "price", "protocol_fee", "referrer_fee", "creator_amount", "referrer", "purchased_at",
}

// exportReceipts writes every purchase at or after since to path and returns
// the number of rows written.
func exportReceipts(ctx context.Context, src receiptSource, since time.Time, format, path string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return writeCSV(ctx, src, since, path)
	case "parquet", "":
		return writeParquet(ctx, src, since, path)
	default:
		return 0, fmt.Errorf("export: unknown format %q", format)
	}
}

func writeCSV(ctx context.Context, src receiptSource, since time.Time, path string) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("export: create csv: %w", err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	if err := w.Write(csvHeader); err != nil {
		return 0, fmt.Errorf("export: write csv header: %w", err)
	}
	count := 0
	err = src.PurchasesSince(ctx, since, func(p index.Purchase) error {
		count++
		return w.Write([]string{
			p.Article,
			p.Buyer,
			strconv.FormatUint(uint64(p.Price), 10),
			strconv.FormatUint(uint64(p.ProtocolFee), 10),
			strconv.FormatUint(uint64(p.ReferrerFee), 10),
			strconv.FormatUint(uint64(p.CreatorAmount), 10),
			p.Referrer,
			p.PurchasedAt.UTC().Format(time.RFC3339),
		})
	})
	if err != nil {
		return 0, fmt.Errorf("export: write csv row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, fmt.Errorf("export: flush csv: %w", err)
	}
	return count, nil
}

func writeParquet(ctx context.Context, src receiptSource, since time.Time, path string) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("export: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(receiptRow), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("export: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	count := 0
	err = src.PurchasesSince(ctx, since, func(p index.Purchase) error {
		count++
		return pw.Write(&receiptRow{
			Article:       p.Article,
			Buyer:         p.Buyer,
			Price:         int64(p.Price),
			ProtocolFee:   int64(p.ProtocolFee),
			ReferrerFee:   int64(p.ReferrerFee),
			CreatorAmount: int64(p.CreatorAmount),
			Referrer:      p.Referrer,
			PurchasedAt:   p.PurchasedAt.UTC().Format(time.RFC3339),
		})
	})
	if err != nil {
		pw.WriteStop()
		file.Close()
		return 0, fmt.Errorf("export: parquet write: %w", err)
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return 0, fmt.Errorf("export: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return 0, fmt.Errorf("export: close parquet file: %w", err)
	}
	return count, nil
}
