package listings

import "fmt"

// cardScript returns page JS that collects up to limit listing cards.
func cardScript(limit int) string {
	return fmt.Sprintf(`
		(function() {
			var limit = %d;
			var results = [];
			var seen = {};
			var text = function(root, sels) {
				for (var i = 0; i < sels.length; i++) {
					var el = root.querySelector(sels[i]);
					if (el && el.innerText) return el.innerText.trim();
				}
				return '';
			};

			var cards = document.querySelectorAll(
				'[data-label="SEARCH"] .tupleNew__outerTupleWrap, div[class*="srpTuple__tupleDetails"], article[class*="listing"], div[data-testid="property-card"]');

			for (var i = 0; i < cards.length && results.length < limit; i++) {
				var card = cards[i];
				var link = card.querySelector('a[href*="spid-"], a[href*="/property/"], a[href]');
				var href = link ? link.href : '';
				if (!href || seen[href]) continue;
				seen[href] = true;

				results.push({
					title:     text(card, ['h2', '.tupleNew__propType', '[class*="title"]']),
					developer: text(card, ['[class*="builder"]', '[class*="developer"]', '.tupleNew__dealerName']),
					location:  text(card, ['.tupleNew__locationName', '[class*="locality"]', '[class*="location"]']),
					price:     text(card, ['.tupleNew__priceValWrap', '[class*="price"]']),
					area:      text(card, ['.tupleNew__area1Type', '[class*="area"]']),
					rate:      text(card, ['.tupleNew__perSqftWrap', '[class*="sqft"]']),
					config:    text(card, ['.tupleNew__bOption', '[class*="config"]', '[class*="bhk"]']),
					url:       href
				});
			}
			return results;
		})()
	`, limit)
}

const detailScript = `
	(function() {
		var text = function(sels) {
			for (var i = 0; i < sels.length; i++) {
				var el = document.querySelector(sels[i]);
				if (el && el.innerText) return el.innerText.trim();
			}
			return '';
		};
		var amenities = [];
		var items = document.querySelectorAll('[class*="amenit"] li, [id*="amenit"] li, [class*="amenit"] [class*="item"]');
		for (var i = 0; i < items.length; i++) {
			var t = (items[i].innerText || '').trim();
			if (t && amenities.indexOf(t) < 0) amenities.push(t);
		}
		return {
			developer: text(['[class*="builderName"]', '[class*="developer"] a', '[class*="builder"]']),
			amenities: amenities,
			parking:   text(['[id*="parking"]', '[class*="parking"]']),
			furnish:   text(['[id*="furnish"]', '[class*="furnish"]']),
			status:    text(['[id*="possession"]', '[class*="constructionStatus"]', '[class*="status"]'])
		};
	})()
`
