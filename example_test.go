package sortjoin_test

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/hupe1980/sortjoin"
)

func ExampleJoiner_Join() {
	products := strings.NewReader("3,cherry\n1,apple\n2,banana\n")
	prices := strings.NewReader("3,2024-01-01,4.20\n1,2024-01-02,0.55\n1,2024-01-01,0.50\n7,2024-01-01,1.00\n")

	j := sortjoin.New()

	var out strings.Builder
	report, err := j.Join(context.Background(), products, prices, &out)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Print(out.String())
	fmt.Println("orphan prices:", report.Join.Orphans)

	// Output:
	// "PRODUCT_ID","PRODUCT_DESCRIPTION","PRICE"
	// 1,apple,0.50,0.55
	// 2,banana
	// 3,cherry,4.20
	// orphan prices: 1
}

// Input headers are joined like any other line unless they are skipped.
func ExampleWithHeaderLines() {
	products := "\"ID\",\"DESCRIPTION\"\n1,apple\n"
	prices := "\"ID\",\"DATE\",\"VALUE\"\n1,2024-01-01,0.50\n"

	for _, skip := range []int{0, 1} {
		var out strings.Builder
		_, err := sortjoin.New(sortjoin.WithHeaderLines(skip)).Join(context.Background(),
			strings.NewReader(products), strings.NewReader(prices), &out)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Print(out.String())
	}

	// Output:
	// "PRODUCT_ID","PRODUCT_DESCRIPTION","PRICE"
	// "ID","DESCRIPTION","VALUE"
	// 1,apple,0.50
	// "PRODUCT_ID","PRODUCT_DESCRIPTION","PRICE"
	// 1,apple,0.50
}

func ExampleMergeFiles() {
	dir, err := os.MkdirTemp("", "sortjoin-example-")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	productsPath := filepath.Join(dir, "products.csv")
	pricesPath := filepath.Join(dir, "prices.csv")
	outputPath := filepath.Join(dir, "joined.csv")

	_ = os.WriteFile(productsPath, []byte("2,banana\n1,apple\n"), 0o644)
	_ = os.WriteFile(pricesPath, []byte("2,2024-01-01,0.25\n"), 0o644)

	metrics := &sortjoin.BasicMetricsCollector{}
	_, err = sortjoin.MergeFiles(context.Background(), productsPath, pricesPath, outputPath,
		sortjoin.WithMetricsCollector(metrics),
		sortjoin.WithTempDir(dir),
		sortjoin.WithBatchSize(1),
	)
	if err != nil {
		log.Fatal(err)
	}

	data, _ := os.ReadFile(outputPath)
	fmt.Print(string(data))
	fmt.Println("groups:", metrics.GetStats().Groups)

	_, err = sortjoin.MergeFiles(context.Background(), filepath.Join(dir, "missing.csv"), pricesPath, outputPath)
	fmt.Println(errors.Is(err, sortjoin.ErrSourceUnavailable))

	// Output:
	// "PRODUCT_ID","PRODUCT_DESCRIPTION","PRICE"
	// 1,apple
	// 2,banana,0.25
	// groups: 2
	// true
}
