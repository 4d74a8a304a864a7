package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"storefront/internal/config"
	"storefront/internal/model"
	"storefront/internal/source"
)

func main() {
	var (
		count      int
		outputFile string
		seed       int64
		dupRate    float64
		toKafka    bool
		configDir  string
	)
	flag.IntVar(&count, "count", 100, "number of records to generate")
	flag.StringVar(&outputFile, "output", "raw-products.jsonl", "output file (- for stdout)")
	flag.Int64Var(&seed, "seed", time.Now().UnixNano(), "random seed")
	flag.Float64Var(&dupRate, "dup-rate", 0.1, "share of records reusing an earlier SKU")
	flag.BoolVar(&toKafka, "kafka", false, "publish to the raw-records topic instead of a file")
	flag.StringVar(&configDir, "config", ".", "directory holding config.yaml (kafka mode)")
	flag.Parse()

	g := newGenerator(rand.New(rand.NewSource(seed)), dupRate)
	var err error
	if toKafka {
		err = publish(configDir, g, count)
	} else {
		err = writeFile(outputFile, g, count)
	}
	if err != nil {
		log.Fatalf("generation failed: %v", err)
	}
}

func writeFile(path string, g *generator, count int) error {
	var out io.Writer = os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create file: %w", err)
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	for i := 0; i < count; i++ {
		if err := enc.Encode(g.next(i)); err != nil {
			return fmt.Errorf("encode record %d: %w", i+1, err)
		}
	}
	log.Printf("generated %d records to %s", count, path)
	return nil
}

func publish(configDir string, g *generator, count int) error {
	_ = godotenv.Load()
	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}
	p, err := source.NewPublisher(cfg.Kafka.Bootstrap, cfg.Kafka.RecordsTopic)
	if err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		b, err := json.Marshal(g.next(i))
		if err != nil {
			return fmt.Errorf("encode record %d: %w", i+1, err)
		}
		var rec model.RawRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			return fmt.Errorf("decode record %d: %w", i+1, err)
		}
		if err := p.Publish(rec); err != nil {
			return fmt.Errorf("publish record %d: %w", i+1, err)
		}
	}
	if left := p.Close(10 * time.Second); left > 0 {
		return fmt.Errorf("%d records not delivered", left)
	}
	log.Printf("published %d records to %s", count, cfg.Kafka.RecordsTopic)
	return nil
}

var (
	categories = []string{"Silk Sarees", "cotton", "Banarasi", "Kanjeevaram", "designer", "Bridal Collection", "georgette", "Party Wear", "daily wear", "Organza", ""}
	fabrics    = []string{"pure silk", "cotton", "katan silk", "georgette", "chiffon", "linen", "organza"}
	occasions  = []string{"wedding", "festive", "party", "office", "casual"}
	colors     = []string{"red", "maroon", "gold", "blue", "green", "mint", "pink", "ivory", "black"}
	adjectives = []string{"Royal", "Classic", "Elegant", "Vintage", "Regal", "Graceful", "Radiant"}
)

// generator emits records in the shapes seen from real feeds: numeric
// strings, single images, legacy colour fields and missing values.
type generator struct {
	rng     *rand.Rand
	dupRate float64
	skus    []string
}

func newGenerator(rng *rand.Rand, dupRate float64) *generator {
	return &generator{rng: rng, dupRate: dupRate}
}

func (g *generator) pick(xs []string) string { return xs[g.rng.Intn(len(xs))] }

func (g *generator) next(i int) map[string]any {
	color := g.pick(colors)
	rec := map[string]any{
		"name":     fmt.Sprintf("%s %s %s Saree", g.pick(adjectives), strings.ToUpper(color[:1])+color[1:], g.pick([]string{"Silk", "Cotton", "Weave", "Drape"})),
		"category": g.pick(categories),
	}
	price := 999 + g.rng.Intn(20000)
	switch g.rng.Intn(4) {
	case 0:
		rec["price"] = strconv.Itoa(price)
	case 1:
		rec["price"] = "₹" + commas(price)
	case 2:
		// no price
	default:
		rec["price"] = price
	}
	if g.rng.Intn(2) == 0 {
		rec["originalPrice"] = price + g.rng.Intn(5000)
	}
	if g.rng.Intn(3) > 0 {
		rec["fabric"] = g.pick(fabrics)
		rec["occasion"] = g.pick(occasions)
	}
	switch g.rng.Intn(3) {
	case 0:
		rec["images"] = []string{imageURL(i, 1), imageURL(i, 2)}
	case 1:
		rec["image"] = imageURL(i, 1)
	}
	if g.rng.Intn(2) == 0 {
		rec["colors"] = []string{color, g.pick(colors)}
	} else {
		rec["color"] = color + ", " + g.pick(colors)
	}
	rec["inStock"] = g.rng.Intn(30) - 2
	if g.rng.Intn(4) > 0 {
		rec["rating"] = float64(g.rng.Intn(60)) / 10
		rec["reviews"] = g.rng.Intn(400)
	}
	rec["featured"] = g.pick([]string{"yes", "no", "true", "0"})
	if g.rng.Intn(5) == 0 {
		rec["blouseIncluded"] = false
	}

	if len(g.skus) > 0 && g.rng.Float64() < g.dupRate {
		rec["sku"] = g.skus[g.rng.Intn(len(g.skus))]
	} else if g.rng.Intn(2) == 0 {
		sku := fmt.Sprintf("FEED-%05d", i+1)
		g.skus = append(g.skus, sku)
		rec["sku"] = sku
	}
	return rec
}

func imageURL(i, n int) string {
	return fmt.Sprintf("https://cdn.example.com/sarees/%05d-%d.jpg", i+1, n)
}

func commas(n int) string {
	s := strconv.Itoa(n)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return s
}
